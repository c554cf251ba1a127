package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yonid4/job-postings-scraper-sub002/internal/config"
)

// fakePage 脚本化的假页面。按选择器的定位串索引预置的文本、属性和元素存在性，
// 并记录会话对页面的全部操作，供断言使用
type fakePage struct {
	mu sync.Mutex

	texts  map[string]string            // query -> 元素文本
	attrs  map[string]map[string]string // query -> 属性名 -> 属性值
	counts map[string]int               // query -> 匹配数量
	exists map[string]bool              // query -> 元素是否存在

	// BodyText 的脚本：先按顺序弹出 bodySeq，弹完后固定返回 body
	body    string
	bodySeq []string

	// 注入的失败。键形如 "navigate:<url>"、"click:<query>"、"wait:<query>"、"text:<query>"
	failures map[string]error

	// 点击后触发的回调，用来脚本化页面状态变化(翻页、表单推进)
	onClick map[string]func()

	navigations []string
	clicks      []string
	fills       map[string]string
	selections  map[string]string
	uploads     map[string]string
	closed      bool
}

func newFakePage() *fakePage {
	return &fakePage{
		texts:    make(map[string]string),
		attrs:    make(map[string]map[string]string),
		counts:   make(map[string]int),
		exists:   make(map[string]bool),
		failures: make(map[string]error),
		onClick:  make(map[string]func()),
		fills:    make(map[string]string),
		selections: make(map[string]string),
		uploads:  make(map[string]string),
	}
}

func (p *fakePage) setAttr(query, name, value string) {
	if p.attrs[query] == nil {
		p.attrs[query] = make(map[string]string)
	}
	p.attrs[query][name] = value
}

func (p *fakePage) fail(key string, err error) {
	p.failures[key] = err
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, url)
	return p.failures["navigate:"+url]
}

func (p *fakePage) WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures["wait:"+sel.Query]
}

func (p *fakePage) Click(ctx context.Context, sel Selector) error {
	p.mu.Lock()
	p.clicks = append(p.clicks, sel.Query)
	err := p.failures["click:"+sel.Query]
	cb := p.onClick[sel.Query]
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if cb != nil {
		cb()
	}
	return nil
}

func (p *fakePage) Fill(ctx context.Context, sel Selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures["fill:"+sel.Query]; err != nil {
		return err
	}
	p.fills[sel.Query] = value
	return nil
}

func (p *fakePage) SelectOption(ctx context.Context, sel Selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selections[sel.Query] = value
	return nil
}

func (p *fakePage) Upload(ctx context.Context, sel Selector, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures["upload:"+sel.Query]; err != nil {
		return err
	}
	p.uploads[sel.Query] = path
	return nil
}

func (p *fakePage) Text(ctx context.Context, sel Selector) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures["text:"+sel.Query]; err != nil {
		return "", err
	}
	text, ok := p.texts[sel.Query]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, sel.Query)
	}
	return text, nil
}

func (p *fakePage) Attr(ctx context.Context, sel Selector, name string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	byName, ok := p.attrs[sel.Query]
	if !ok {
		return "", false, nil
	}
	value, ok := byName[name]
	return value, ok, nil
}

func (p *fakePage) Count(ctx context.Context, sel Selector) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures["count:"+sel.Query]; err != nil {
		return 0, err
	}
	return p.counts[sel.Query], nil
}

func (p *fakePage) Exists(ctx context.Context, sel Selector) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exists[sel.Query], nil
}

func (p *fakePage) BodyText(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.bodySeq) > 0 {
		next := p.bodySeq[0]
		p.bodySeq = p.bodySeq[1:]
		return next, nil
	}
	return p.body, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// fakeFactory 按顺序发放预置的假页面
type fakeFactory struct {
	mu    sync.Mutex
	pages []*fakePage
	idx   int
}

func (f *fakeFactory) NewPage(ctx context.Context) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.pages) {
		return nil, fmt.Errorf("没有更多预置页面")
	}
	page := f.pages[f.idx]
	f.idx++
	return page, nil
}

// testCatalog 测试用的简化选择器目录，定位串刻意取短便于在假页面里索引
func testCatalog() *Catalog {
	return NewCatalog("test", map[string]Selector{
		SelLoginUsername: {Strategy: ByCSS, Query: "#user"},
		SelLoginPassword: {Strategy: ByCSS, Query: "#pass"},
		SelLoginSubmit:   {Strategy: ByCSS, Query: "#login"},
		SelLoginSuccess:  {Strategy: ByCSS, Query: "#nav"},

		SelResultsContainer: {Strategy: ByCSS, Query: "#results"},
		SelJobCard:          {Strategy: ByCSS, Query: ".card"},
		SelJobCardTitle:     {Strategy: ByCSS, Query: ".title"},
		SelJobCardCompany:   {Strategy: ByCSS, Query: ".company"},
		SelJobCardLocation:  {Strategy: ByCSS, Query: ".location"},
		SelJobCardLink:      {Strategy: ByCSS, Query: ".link"},
		SelJobCardSalary:    {Strategy: ByCSS, Query: ".salary"},
		SelJobCardWorkMode:  {Strategy: ByCSS, Query: ".mode"},
		SelNextPage:         {Strategy: ByCSS, Query: "#next-page"},

		SelApplyButton:       {Strategy: ByCSS, Query: "#apply"},
		SelExternalApplyLink: {Strategy: ByCSS, Query: ".ext-apply"},

		SelFormTextInput:     {Strategy: ByCSS, Query: ".f-text"},
		SelFormSelect:        {Strategy: ByCSS, Query: ".f-select"},
		SelFormFileInput:     {Strategy: ByCSS, Query: ".f-file"},
		SelFormQuestionLabel: {Strategy: ByCSS, Query: ".f-label"},
		SelFormQuestionInput: {Strategy: ByCSS, Query: ".f-answer"},
		SelFormRequiredMark:  {Strategy: ByCSS, Query: ".f-required"},
		SelFormNext:          {Strategy: ByCSS, Query: "#form-next"},
		SelFormSubmit:        {Strategy: ByCSS, Query: "#form-submit"},
		SelSubmitConfirmed:   {Strategy: ByCSS, Query: "#confirmed"},

		SelFilterDatePosted:      {Strategy: ByCSS, Query: "#f-date"},
		SelFilterWorkArrangement: {Strategy: ByCSS, Query: "#f-work"},
		SelFilterExperience:      {Strategy: ByCSS, Query: "#f-exp"},
		SelFilterJobType:         {Strategy: ByCSS, Query: "#f-type"},
		SelFilterSalary:          {Strategy: ByCSS, Query: "#f-salary"},
		SelFilterCompanySize:     {Strategy: ByCSS, Query: "#f-size"},
		SelFilterIndustry:        {Strategy: ByCSS, Query: "#f-industry"},
		SelFilterRemoteOptions:   {Strategy: ByCSS, Query: "#f-remote"},
		SelFilterApply:           {Strategy: ByCSS, Query: "#f-apply"},
	})
}

// testAutomationConfig 测试用自动化配置：零延迟，小上限
func testAutomationConfig() *config.AutomationConfig {
	return &config.AutomationConfig{
		MinActionDelayMS:      0,
		MaxActionDelayMS:      0,
		SiteQPM:               6000,
		ElementWaitSeconds:    1,
		NavigationWaitSeconds: 1,
		MaxJobsPerSession:     50,
		MaxPagesPerSearch:     5,
		MaxApplicationSteps:   4,
		MaxConcurrentSessions: 2,
		ResumeTokenTTLMinutes: 30,
	}
}

func testSiteConfig() *config.SiteConfig {
	return &config.SiteConfig{
		BaseURL:    "https://jobs.example.org",
		LoginPath:  "/login",
		SearchPath: "/jobs/search",
		Username:   "user@example.org",
		Password:   "secret",
	}
}

// newTestSession 组装一条挂在假页面上的会话
func newTestSession(page *fakePage, monitor *Monitor) *Session {
	return NewSession(page, testCatalog(), testSiteConfig(), testAutomationConfig(), monitor, nil, zerolog.Nop())
}

// newTestMonitor 默认30分钟TTL、无镜像的监视器
func newTestMonitor() *Monitor {
	return NewMonitor(30*time.Minute, nil, zerolog.Nop())
}

// primeLoginSuccess 预置登录成功所需的页面状态
func primeLoginSuccess(page *fakePage) {
	page.exists["#user"] = true
}

// primeSearchResults 预置搜索结果容器存在
func primeSearchResults(page *fakePage) {
	page.exists["#results"] = true
}

// addCard 在假页面上登记第i张职位卡片(1起)的内容
func addCard(page *fakePage, i int, sourceID, title, href string) {
	card := fmt.Sprintf(".card:nth-of-type(%d)", i)
	page.texts[card+" .title"] = title
	page.setAttr(card+" .link", "href", href)
	if sourceID != "" {
		page.setAttr(card, "data-job-id", sourceID)
	}
}
