package automation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunSearchHappyPath 登录、搜索、单页提取的完整流程
func TestRunSearchHappyPath(t *testing.T) {
	page := newFakePage()
	primeLoginSuccess(page)
	primeSearchResults(page)
	page.counts[".card"] = 2
	addCard(page, 1, "1001", "Backend Engineer", "/jobs/view/1001")
	addCard(page, 2, "1002", "SRE", "/jobs/view/1002")

	sess := newTestSession(page, newTestMonitor())
	req := &SearchRequest{Keywords: []string{"golang"}, Location: "Berlin"}

	listings, err := sess.RunSearch(context.Background(), req)

	require.NoError(t, err, "完整流程不应出错")
	require.Len(t, listings, 2, "应提取两条职位")
	assert.Equal(t, "1001", listings[0].SourceID)
	assert.Equal(t, "https://jobs.example.org/jobs/view/1001", listings[0].URL, "相对链接应补全为绝对地址")
	assert.Equal(t, "Backend Engineer", listings[0].Title)
	assert.Equal(t, StateDone, sess.State(), "流程结束后应到达done状态")
	assert.Equal(t, 2, sess.Counters().JobsFound)

	// 登录表单确实被填写
	assert.Equal(t, "user@example.org", page.fills["#user"], "登录账号应被填入")
	assert.Equal(t, "secret", page.fills["#pass"], "登录密码应被填入")
	require.NotEmpty(t, page.navigations)
	assert.Equal(t, "https://jobs.example.org/login", page.navigations[0], "第一跳必须是登录页")
	assert.Contains(t, page.navigations[1], "keywords=golang", "搜索URL应携带关键词")
}

// TestRunSearchDedupeAcrossPages 跨页重复的SourceID只保留首次出现
func TestRunSearchDedupeAcrossPages(t *testing.T) {
	page := newFakePage()
	primeLoginSuccess(page)
	primeSearchResults(page)
	page.counts[".card"] = 2
	addCard(page, 1, "1001", "Backend Engineer", "/jobs/view/1001")
	addCard(page, 2, "1002", "SRE", "/jobs/view/1002")

	// 第二页重复1002并引入1003，翻完第二页后没有更多页
	page.exists["#next-page"] = true
	page.onClick["#next-page"] = func() {
		addCard(page, 1, "1002", "SRE", "/jobs/view/1002")
		addCard(page, 2, "1003", "Platform Engineer", "/jobs/view/1003")
		page.exists["#next-page"] = false
	}

	sess := newTestSession(page, newTestMonitor())
	listings, err := sess.RunSearch(context.Background(), &SearchRequest{Keywords: []string{"go"}})

	require.NoError(t, err)
	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.SourceID)
	}
	assert.Equal(t, []string{"1001", "1002", "1003"}, ids, "重复职位应按SourceID去重且保持首次出现顺序")
	assert.Equal(t, 3, sess.Counters().JobsFound)
}

// TestRunSearchSkipsMalformedCard 畸形卡片跳过，其余正常提取
func TestRunSearchSkipsMalformedCard(t *testing.T) {
	page := newFakePage()
	primeLoginSuccess(page)
	primeSearchResults(page)
	page.counts[".card"] = 3
	addCard(page, 1, "1001", "Backend Engineer", "/jobs/view/1001")
	// 第二张卡片没有标题
	page.setAttr(".card:nth-of-type(2) .link", "href", "/jobs/view/1002")
	addCard(page, 3, "1003", "Platform Engineer", "/jobs/view/1003")

	sess := newTestSession(page, newTestMonitor())
	listings, err := sess.RunSearch(context.Background(), &SearchRequest{Keywords: []string{"go"}})

	require.NoError(t, err, "单卡片畸形不应让整个流程失败")
	require.Len(t, listings, 2)
	assert.Equal(t, "1001", listings[0].SourceID)
	assert.Equal(t, "1003", listings[1].SourceID)
	assert.Positive(t, sess.Counters().Errors, "畸形卡片应计入错误数")
	assert.Equal(t, StateDone, sess.State())
}

// TestRunSearchJobCap 达到单会话职位上限后停止翻页
func TestRunSearchJobCap(t *testing.T) {
	page := newFakePage()
	primeLoginSuccess(page)
	primeSearchResults(page)
	page.counts[".card"] = 3
	addCard(page, 1, "1001", "A", "/jobs/view/1001")
	addCard(page, 2, "1002", "B", "/jobs/view/1002")
	addCard(page, 3, "1003", "C", "/jobs/view/1003")
	page.exists["#next-page"] = true // 不应被点到

	sess := newTestSession(page, newTestMonitor())
	sess.cfg = testAutomationConfig()
	sess.cfg.MaxJobsPerSession = 2

	listings, err := sess.RunSearch(context.Background(), &SearchRequest{Keywords: []string{"go"}})

	require.NoError(t, err)
	assert.Len(t, listings, 2, "达到上限后不应继续收集")
	assert.NotContains(t, page.clicks, "#next-page", "达到上限后不应再翻页")
	assert.Equal(t, StateDone, sess.State())
}

// TestRunSearchPaginationFailureReturnsPartial 翻页失败时已提取结果仍然交还
func TestRunSearchPaginationFailureReturnsPartial(t *testing.T) {
	page := newFakePage()
	primeLoginSuccess(page)
	primeSearchResults(page)
	page.counts[".card"] = 2
	addCard(page, 1, "1001", "A", "/jobs/view/1001")
	addCard(page, 2, "1002", "B", "/jobs/view/1002")
	page.exists["#next-page"] = true
	page.fail("click:#next-page", errors.New("element detached from DOM"))

	sess := newTestSession(page, newTestMonitor())
	listings, err := sess.RunSearch(context.Background(), &SearchRequest{Keywords: []string{"go"}})

	require.Error(t, err, "翻页失败应上报错误")
	assert.Len(t, listings, 2, "部分结果必须随错误一起返回")
	assert.Equal(t, StateFailed, sess.State())
}

// TestRunSearchRetriesTimeoutOnce 有界等待超时恰好重试一次
func TestRunSearchRetriesTimeoutOnce(t *testing.T) {
	page := newFakePage()
	primeLoginSuccess(page)
	primeSearchResults(page)
	page.counts[".card"] = 1
	addCard(page, 1, "1001", "A", "/jobs/view/1001")
	page.exists["#next-page"] = true

	clicks := 0
	page.onClick["#next-page"] = func() {
		clicks++
		if clicks == 1 {
			// 第一次点击后结果容器等待超时，重试后成功且没有更多页
			page.fail("wait:#results", fmt.Errorf("%w: 结果容器", ErrTimeout))
		} else {
			delete(page.failures, "wait:#results")
			page.exists["#next-page"] = false
			addCard(page, 1, "1002", "B", "/jobs/view/1002")
		}
	}

	sess := newTestSession(page, newTestMonitor())
	listings, err := sess.RunSearch(context.Background(), &SearchRequest{Keywords: []string{"go"}})

	require.NoError(t, err, "超时重试一次后应成功")
	assert.Equal(t, 2, clicks, "翻页点击应恰好发生两次(原始+重试)")
	assert.Len(t, listings, 2)
}

// TestRunSearchLoginFormMissing 登录表单缺失是致命错误
func TestRunSearchLoginFormMissing(t *testing.T) {
	page := newFakePage()
	// 不预置 #user 存在

	sess := newTestSession(page, newTestMonitor())
	_, err := sess.RunSearch(context.Background(), &SearchRequest{Keywords: []string{"go"}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthenticationFailed), "应归类为认证失败")
	assert.Equal(t, StateFailed, sess.State())
}

// TestRunSearchChallengeDuringExtractionAndResume 提取途中撞上人工验证，
// 恢复后从同一页码续跑且总数一致
func TestRunSearchChallengeDuringExtractionAndResume(t *testing.T) {
	page := newFakePage()
	primeLoginSuccess(page)
	primeSearchResults(page)
	page.counts[".card"] = 2
	addCard(page, 1, "1001", "A", "/jobs/view/1001")
	addCard(page, 2, "1002", "B", "/jobs/view/1002")
	// 登录后和导航后的探测干净，第一次提取前撞上验证码
	page.bodySeq = []string{"", "", "please solve this CAPTCHA to continue"}

	monitor := newTestMonitor()
	sess := newTestSession(page, monitor)
	req := &SearchRequest{Keywords: []string{"go"}}

	listings, err := sess.RunSearch(context.Background(), req)

	require.Error(t, err)
	sig, ok := AsManualIntervention(err)
	require.True(t, ok, "错误链中应携带人工干预信号")
	assert.NotEmpty(t, sig.ResumeToken, "中断必须携带恢复令牌")
	assert.Empty(t, listings, "尚未提取任何职位")
	assert.Equal(t, StateInterrupted, sess.State(), "会话应挂起而不是失败")
	assert.False(t, page.closed, "挂起的会话必须保留浏览器")
	assert.Equal(t, 1, monitor.PendingCount())

	// 人工清障后恢复，从中断页码续跑
	result, err := monitor.Resume(context.Background(), sig.ResumeToken)
	require.NoError(t, err, "恢复流程不应出错")
	require.NotNil(t, result)
	assert.Len(t, result.Listings, 2, "恢复后应拿到与不中断时一致的结果")
	assert.Equal(t, StateDone, sess.State())
	assert.Equal(t, 0, monitor.PendingCount(), "令牌恰好消费一次")
	assert.True(t, page.closed, "恢复流程正常结束后浏览器必须被释放")
}

// TestRunSearchResumeReinterrupted 恢复途中再次撞上挑战：
// 按新中断重新挂起，浏览器保持存活，第二次恢复后才释放
func TestRunSearchResumeReinterrupted(t *testing.T) {
	page := newFakePage()
	primeLoginSuccess(page)
	primeSearchResults(page)
	page.counts[".card"] = 2
	addCard(page, 1, "1001", "A", "/jobs/view/1001")
	addCard(page, 2, "1002", "B", "/jobs/view/1002")
	// 第一次提取前撞上验证码，恢复后的第一次探测又是验证码
	page.bodySeq = []string{"", "", "please solve this CAPTCHA to continue", "another puzzle appeared"}

	monitor := newTestMonitor()
	sess := newTestSession(page, monitor)
	req := &SearchRequest{Keywords: []string{"go"}}

	_, err := sess.RunSearch(context.Background(), req)
	require.Error(t, err)
	sig, ok := AsManualIntervention(err)
	require.True(t, ok)

	_, err = monitor.Resume(context.Background(), sig.ResumeToken)
	require.Error(t, err, "恢复途中的新挑战应再次中断")
	sig2, ok := AsManualIntervention(err)
	require.True(t, ok, "错误链中应携带新的人工干预信号")
	assert.NotEqual(t, sig.ResumeToken, sig2.ResumeToken, "重新挂起必须签发新令牌")
	assert.Equal(t, StateInterrupted, sess.State())
	assert.False(t, page.closed, "重新挂起的会话必须继续保留浏览器")
	assert.Equal(t, 1, monitor.PendingCount())

	result, err := monitor.Resume(context.Background(), sig2.ResumeToken)
	require.NoError(t, err)
	assert.Len(t, result.Listings, 2)
	assert.Equal(t, StateDone, sess.State())
	assert.True(t, page.closed, "第二次恢复终结后浏览器必须被释放")
	assert.Equal(t, 0, monitor.PendingCount())
}

// TestRunSearchChallengeDuringLoginAndResume 认证阶段的中断恢复后走完整流程
func TestRunSearchChallengeDuringLoginAndResume(t *testing.T) {
	page := newFakePage()
	primeLoginSuccess(page)
	primeSearchResults(page)
	page.counts[".card"] = 1
	addCard(page, 1, "1001", "A", "/jobs/view/1001")
	// 登录页就是验证码
	page.bodySeq = []string{"unusual traffic detected - security challenge"}

	monitor := newTestMonitor()
	sess := newTestSession(page, monitor)
	req := &SearchRequest{Keywords: []string{"go"}}

	_, err := sess.RunSearch(context.Background(), req)
	require.Error(t, err)
	sig, ok := AsManualIntervention(err)
	require.True(t, ok)

	result, err := monitor.Resume(context.Background(), sig.ResumeToken)
	require.NoError(t, err)
	assert.Len(t, result.Listings, 1)
	assert.Equal(t, StateDone, sess.State())
	assert.True(t, page.closed, "恢复流程正常结束后浏览器必须被释放")
}

// TestExtractPagesCancelledBetweenSteps 取消只在步骤间生效
func TestExtractPagesCancelledBetweenSteps(t *testing.T) {
	page := newFakePage()
	sess := newTestSession(page, newTestMonitor())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	collected := []Listing{{SourceID: "1001"}}
	got, err := sess.extractPages(ctx, &SearchRequest{}, 1, collected)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionCancelled), "应归类为会话取消")
	assert.Equal(t, collected, got, "取消时已积累结果仍然交还")
	assert.Equal(t, StateFailed, sess.State())
}

// TestSessionCloseIdempotent Close可重复调用
func TestSessionCloseIdempotent(t *testing.T) {
	page := newFakePage()
	sess := newTestSession(page, newTestMonitor())

	sess.Close()
	sess.Close()

	assert.True(t, page.closed)
}

// TestApplyUIFiltersClicksControls 高级筛选逐个点击对应UI控件
func TestApplyUIFiltersClicksControls(t *testing.T) {
	page := newFakePage()
	primeLoginSuccess(page)
	primeSearchResults(page)
	page.exists["#f-apply"] = true

	sess := newTestSession(page, newTestMonitor())
	req := &SearchRequest{
		Keywords:        []string{"go"},
		DatePosted:      "past_week",
		WorkArrangement: "remote",
	}

	_, err := sess.RunSearch(context.Background(), req)
	require.NoError(t, err)

	assert.Contains(t, page.clicks, "#f-date", "date_posted控件应被点击")
	assert.Contains(t, page.clicks, "li[data-value='past_week']", "筛选值应通过选项点击")
	assert.Contains(t, page.clicks, "#f-work")
	assert.Contains(t, page.clicks, "li[data-value='remote']")
	assert.Contains(t, page.clicks, "#f-apply", "有筛选应用后需要点击确认按钮")
}
