package automation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestParseSalaryRange 各种常见薪资文本写法
func TestParseSalaryRange(t *testing.T) {
	cases := []struct {
		text     string
		min, max int
		currency string
	}{
		{"$80,000 - $100,000", 80000, 100000, "USD"},
		{"€60K–€80K", 60000, 80000, "EUR"},
		{"£45,000", 45000, 45000, "GBP"},
		{"competitive salary", 0, 0, ""},
		{"", 0, 0, ""},
		{"120,000 - 150,000", 120000, 150000, ""},
	}
	for _, tc := range cases {
		minV, maxV, cur := parseSalaryRange(tc.text)
		assert.Equal(t, tc.min, minV, "薪资下界解析错误: %q", tc.text)
		assert.Equal(t, tc.max, maxV, "薪资上界解析错误: %q", tc.text)
		assert.Equal(t, tc.currency, cur, "币种解析错误: %q", tc.text)
	}
}

// TestSourceIDFromURL 从规范化URL提取站点职位ID
func TestSourceIDFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://jobs.example.org/jobs/view/3847562", "3847562"},
		{"https://jobs.example.org/job/9001", "9001"},
		{"https://jobs.example.org/jobs/view/senior-go-engineer-12345", "12345"},
		{"https://jobs.example.org/postings/abc-def", "abc-def"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sourceIDFromURL(tc.url), "URL解析错误: %s", tc.url)
	}
}

// TestCanonicalURL 相对链接补全、跟踪参数剥离
func TestCanonicalURL(t *testing.T) {
	sess := newTestSession(newFakePage(), newTestMonitor())

	assert.Equal(t,
		"https://jobs.example.org/jobs/view/1001",
		sess.canonicalURL("/jobs/view/1001?refId=abc&trk=search"),
		"相对链接应补全base并去掉查询串")
	assert.Equal(t,
		"https://other.example.com/jobs/view/2",
		sess.canonicalURL("https://other.example.com/jobs/view/2?utm=x"),
		"绝对链接只剥离查询串")
}

// TestNormalizeWorkArrangement 工作安排标签规范化
func TestNormalizeWorkArrangement(t *testing.T) {
	assert.Equal(t, "On-site", normalizeWorkArrangement("  on-site "))
	assert.Equal(t, "On-site", normalizeWorkArrangement("Onsite"))
	assert.Equal(t, "Remote", normalizeWorkArrangement("REMOTE"))
	assert.Equal(t, "Hybrid", normalizeWorkArrangement("hybrid"))
	assert.Equal(t, "", normalizeWorkArrangement("flexible"), "识别不出的标签返回空")

	assert.Equal(t, RemoteFull, remoteTypeFromArrangement("Remote"))
	assert.Equal(t, RemotePartial, remoteTypeFromArrangement("Hybrid"))
	assert.Equal(t, RemoteNone, remoteTypeFromArrangement("On-site"))
	assert.Equal(t, RemoteUnknown, remoteTypeFromArrangement(""))
}

// TestExtractCardOptionalFields 可选字段缺失不算畸形，存在则被解析
func TestExtractCardOptionalFields(t *testing.T) {
	page := newFakePage()
	addCard(page, 1, "1001", "Backend Engineer", "/jobs/view/1001")
	card := ".card:nth-of-type(1)"
	page.texts[card+" .company"] = " Acme Corp "
	page.texts[card+" .location"] = "Berlin, Germany"
	page.texts[card+" .salary"] = "$90,000 - $110,000"
	page.texts[card+" .mode"] = "Hybrid"
	page.setAttr(card+" .ext-apply", "href", "https://ats.example.com/apply/1001")

	sess := newTestSession(page, newTestMonitor())
	listing, err := sess.extractCard(context.Background(), 1)

	assert.NoError(t, err)
	assert.Equal(t, "Acme Corp", listing.Company, "公司名应去除首尾空白")
	assert.Equal(t, "Berlin, Germany", listing.Location)
	assert.Equal(t, 90000, listing.SalaryMin)
	assert.Equal(t, 110000, listing.SalaryMax)
	assert.Equal(t, "USD", listing.SalaryCurrency)
	assert.Equal(t, "Hybrid", listing.WorkArrangement)
	assert.Equal(t, RemotePartial, listing.RemoteType)
	assert.Equal(t, "https://ats.example.com/apply/1001", listing.ExternalApplicationURL)
	assert.False(t, listing.InPageApplyOnly(), "带第三方入口的职位不可走站内申请")
	assert.False(t, listing.ScrapedAt.IsZero())
}

// TestExtractCardFallsBackToURLID 没有data属性时从URL提取ID
func TestExtractCardFallsBackToURLID(t *testing.T) {
	page := newFakePage()
	addCard(page, 1, "", "Backend Engineer", "/jobs/view/7777")

	sess := newTestSession(page, newTestMonitor())
	listing, err := sess.extractCard(context.Background(), 1)

	assert.NoError(t, err)
	assert.Equal(t, "7777", listing.SourceID)
	assert.True(t, listing.InPageApplyOnly(), "无第三方入口的职位默认站内申请")
}
