package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile() *ApplicantProfile {
	return &ApplicantProfile{
		FullName:         "Jordan Smith",
		Email:            "jordan@example.org",
		Phone:            "+49 170 0000000",
		Location:         "Berlin",
		ResumePath:       "/tmp/resume.pdf",
		AutoApplyEnabled: true,
		DefaultAnswers: map[QuestionCategory]string{
			CategoryRelocation:      "Yes",
			CategoryYearsExperience: "6",
		},
	}
}

func inPageListing() *Listing {
	return &Listing{
		SourceID: "1001",
		URL:      "https://jobs.example.org/jobs/view/1001",
		Title:    "Backend Engineer",
	}
}

// primeApplyForm 预置职位详情页和申请按钮
func primeApplyForm(page *fakePage) {
	primeLoginSuccess(page)
	page.exists["#apply"] = true
}

// TestApplySubmitHappyPath 单步表单：填联系信息、上传简历、提交并确认
func TestApplySubmitHappyPath(t *testing.T) {
	page := newFakePage()
	primeApplyForm(page)
	page.counts[".f-text"] = 2
	page.setAttr(".f-text:nth-of-type(1)", "name", "applicant_email")
	page.setAttr(".f-text:nth-of-type(2)", "name", "phone_number")
	page.counts[".f-file"] = 1
	page.setAttr(".f-file:nth-of-type(1)", "name", "resume_upload")
	page.exists["#form-submit"] = true

	sess := newTestSession(page, newTestMonitor())
	engine := NewEngine(sess, testProfile())

	outcome, err := engine.Apply(context.Background(), inPageListing())

	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, ApplicationSubmitted, outcome.Status)
	assert.Equal(t, 1, outcome.StepsCompleted)
	assert.Equal(t, "1001", outcome.ListingID)
	assert.Empty(t, outcome.UnansweredQuestions)

	assert.Equal(t, "jordan@example.org", page.fills[".f-text:nth-of-type(1)"], "邮箱应按控件名路由")
	assert.Equal(t, "+49 170 0000000", page.fills[".f-text:nth-of-type(2)"], "电话应按控件名路由")
	assert.Equal(t, "/tmp/resume.pdf", page.uploads[".f-file:nth-of-type(1)"], "简历应上传到文件控件")
	assert.Equal(t, 1, sess.Counters().ApplicationsSubmitted, "提交计数应自增")
	assert.Contains(t, page.navigations, "https://jobs.example.org/jobs/view/1001")
}

// TestApplyMultiStepForm 中间步骤点下一步，末步提交
func TestApplyMultiStepForm(t *testing.T) {
	page := newFakePage()
	primeApplyForm(page)
	page.exists["#form-next"] = true
	page.onClick["#form-next"] = func() {
		page.exists["#form-next"] = false
		page.exists["#form-submit"] = true
	}

	sess := newTestSession(page, newTestMonitor())
	engine := NewEngine(sess, testProfile())

	outcome, err := engine.Apply(context.Background(), inPageListing())

	require.NoError(t, err)
	assert.Equal(t, ApplicationSubmitted, outcome.Status)
	assert.Equal(t, 2, outcome.StepsCompleted, "两步表单应记录两步")
	assert.Contains(t, page.clicks, "#form-next")
}

// TestApplyRejectsExternalListing 指向第三方入口的职位直接拒绝
func TestApplyRejectsExternalListing(t *testing.T) {
	page := newFakePage()
	sess := newTestSession(page, newTestMonitor())
	engine := NewEngine(sess, testProfile())

	listing := inPageListing()
	listing.ExternalApplicationURL = "https://ats.example.com/apply/1001"

	outcome, err := engine.Apply(context.Background(), listing)

	require.Error(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, ApplicationFailed, outcome.Status)
	assert.Empty(t, page.navigations, "不应发生任何页面操作")
}

// TestApplyRespectsSessionCap 达到单会话申请上限后拒绝新申请
func TestApplyRespectsSessionCap(t *testing.T) {
	page := newFakePage()
	sess := newTestSession(page, newTestMonitor())
	sess.counters.ApplicationsSubmitted = 1

	profile := testProfile()
	profile.MaxApplicationsPerSession = 1
	engine := NewEngine(sess, profile)

	outcome, err := engine.Apply(context.Background(), inPageListing())

	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.Contains(t, err.Error(), "申请上限")
	assert.Empty(t, page.navigations)
}

// TestApplySkipComplexOnRequiredUpload 必填上传控件无对应材料，按策略放弃
func TestApplySkipComplexOnRequiredUpload(t *testing.T) {
	page := newFakePage()
	primeApplyForm(page)
	page.counts[".f-file"] = 1
	page.setAttr(".f-file:nth-of-type(1)", "name", "portfolio_upload")
	page.setAttr(".f-file:nth-of-type(1)", "required", "")

	sess := newTestSession(page, newTestMonitor())
	profile := testProfile()
	profile.SkipComplexApplications = true
	engine := NewEngine(sess, profile)

	outcome, err := engine.Apply(context.Background(), inPageListing())

	require.NoError(t, err, "策略放弃是正常结果不是错误")
	require.NotNil(t, outcome)
	assert.Equal(t, ApplicationAbortedComplex, outcome.Status)
	assert.Contains(t, outcome.Message, "portfolio_upload")
	assert.Equal(t, 0, sess.Counters().ApplicationsSubmitted)
}

// TestApplyUnresolvedFieldWithoutSkipFails 不放弃策略下无法解析的必填字段是错误
func TestApplyUnresolvedFieldWithoutSkipFails(t *testing.T) {
	page := newFakePage()
	primeApplyForm(page)
	page.counts[".f-file"] = 1
	page.setAttr(".f-file:nth-of-type(1)", "name", "portfolio_upload")
	page.setAttr(".f-file:nth-of-type(1)", "required", "")

	sess := newTestSession(page, newTestMonitor())
	engine := NewEngine(sess, testProfile())

	outcome, err := engine.Apply(context.Background(), inPageListing())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedField))
	require.NotNil(t, outcome)
	assert.Equal(t, ApplicationFailed, outcome.Status)
}

// TestApplyOptionalUploadSkipped 可选上传控件无材料时静默跳过
func TestApplyOptionalUploadSkipped(t *testing.T) {
	page := newFakePage()
	primeApplyForm(page)
	page.counts[".f-file"] = 1
	page.setAttr(".f-file:nth-of-type(1)", "name", "portfolio_upload")
	page.exists["#form-submit"] = true

	sess := newTestSession(page, newTestMonitor())
	engine := NewEngine(sess, testProfile())

	outcome, err := engine.Apply(context.Background(), inPageListing())

	require.NoError(t, err)
	assert.Equal(t, ApplicationSubmitted, outcome.Status)
	assert.Empty(t, page.uploads)
}

// TestApplyManualReviewOnUnansweredQuestion 必答问题无答案且要求人工复核时留待人工
func TestApplyManualReviewOnUnansweredQuestion(t *testing.T) {
	page := newFakePage()
	primeApplyForm(page)
	page.counts[".f-label"] = 1
	page.texts[".f-label:nth-of-type(1)"] = "Do you hold a security clearance?"
	page.exists[".f-label:nth-of-type(1) .f-required"] = true
	page.exists["#form-submit"] = true

	sess := newTestSession(page, newTestMonitor())
	profile := testProfile()
	profile.RequireManualReview = true
	engine := NewEngine(sess, profile)

	outcome, err := engine.Apply(context.Background(), inPageListing())

	require.NoError(t, err, "留待人工复核是正常结果不是错误")
	require.NotNil(t, outcome)
	assert.Equal(t, ApplicationAbortedManualReview, outcome.Status)
	assert.Equal(t, []string{"Do you hold a security clearance?"}, outcome.UnansweredQuestions)
	assert.Equal(t, 0, sess.Counters().ApplicationsSubmitted)
}

// TestApplyAnswersKnownQuestion 命中档案默认答案的问题被填写
func TestApplyAnswersKnownQuestion(t *testing.T) {
	page := newFakePage()
	primeApplyForm(page)
	page.counts[".f-label"] = 1
	page.texts[".f-label:nth-of-type(1)"] = "Are you willing to relocate?"
	page.exists["#form-submit"] = true

	sess := newTestSession(page, newTestMonitor())
	engine := NewEngine(sess, testProfile())

	outcome, err := engine.Apply(context.Background(), inPageListing())

	require.NoError(t, err)
	assert.Equal(t, ApplicationSubmitted, outcome.Status)
	assert.Equal(t, "Yes", page.fills[".f-answer:nth-of-type(1)"], "搬迁问题应以档案默认答案作答")
	assert.Empty(t, outcome.UnansweredQuestions)
}

// TestApplyStepsExhausted 步数超限后按策略放弃或失败
func TestApplyStepsExhausted(t *testing.T) {
	page := newFakePage()
	primeApplyForm(page)
	page.exists["#form-next"] = true // 永远有下一步

	sess := newTestSession(page, newTestMonitor())
	profile := testProfile()
	profile.SkipComplexApplications = true
	engine := NewEngine(sess, profile)

	outcome, err := engine.Apply(context.Background(), inPageListing())

	require.NoError(t, err)
	assert.Equal(t, ApplicationAbortedComplex, outcome.Status)
	assert.Equal(t, sess.cfg.MaxApplicationSteps, outcome.StepsCompleted)
}

// TestApplyChallengeAndResume 申请途中撞上人工验证，恢复后继续并成功提交
func TestApplyChallengeAndResume(t *testing.T) {
	page := newFakePage()
	primeApplyForm(page)
	page.exists["#form-submit"] = true
	// 登录后与表单打开后的探测干净，第一步前撞上验证码
	page.bodySeq = []string{"", "", "please solve this puzzle to verify you are human"}

	monitor := newTestMonitor()
	sess := newTestSession(page, monitor)
	engine := NewEngine(sess, testProfile())

	outcome, err := engine.Apply(context.Background(), inPageListing())

	require.Error(t, err)
	require.Nil(t, outcome, "挂起时没有终态结果")
	sig, ok := AsManualIntervention(err)
	require.True(t, ok)
	assert.Equal(t, StateInterrupted, sess.State())
	assert.False(t, page.closed, "挂起的会话必须保留浏览器")

	result, err := monitor.Resume(context.Background(), sig.ResumeToken)

	require.NoError(t, err)
	require.NotNil(t, result.Outcome, "申请恢复应返回申请结果")
	assert.Equal(t, ApplicationSubmitted, result.Outcome.Status)
	assert.Equal(t, 1, sess.Counters().ApplicationsSubmitted)
	assert.True(t, page.closed, "申请恢复终结后浏览器必须被释放")
}

// TestApplySubmitConfirmationTimeout 提交后确认标记未出现按失败处理，不重放提交
func TestApplySubmitConfirmationTimeout(t *testing.T) {
	page := newFakePage()
	primeApplyForm(page)
	page.exists["#form-submit"] = true
	page.fail("wait:#confirmed", errors.New("waiting for selector timed out"))

	sess := newTestSession(page, newTestMonitor())
	engine := NewEngine(sess, testProfile())

	outcome, err := engine.Apply(context.Background(), inPageListing())

	require.Error(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, ApplicationFailed, outcome.Status)
	assert.Equal(t, 0, sess.Counters().ApplicationsSubmitted, "未确认的提交不计数")

	submitClicks := 0
	for _, q := range page.clicks {
		if q == "#form-submit" {
			submitClicks++
		}
	}
	assert.Equal(t, 1, submitClicks, "提交点击绝不重放")
}
