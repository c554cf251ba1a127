package automation

import (
	"fmt"
)

// 语义元素名。状态机只认这些名字，站点改版时只需要换目录版本，不动状态机逻辑
const (
	SelLoginUsername = "login.username"
	SelLoginPassword = "login.password"
	SelLoginSubmit   = "login.submit"
	SelLoginSuccess  = "login.success_marker"

	SelResultsContainer = "search.results_container"
	SelJobCard          = "search.job_card"
	SelJobCardTitle     = "search.job_card.title"
	SelJobCardCompany   = "search.job_card.company"
	SelJobCardLocation  = "search.job_card.location"
	SelJobCardLink      = "search.job_card.link"
	SelJobCardSalary    = "search.job_card.salary"
	SelJobCardWorkMode  = "search.job_card.work_mode"
	SelNextPage         = "search.next_page"

	SelApplyButton       = "apply.button"
	SelExternalApplyLink = "apply.external_link"

	SelFormTextInput     = "apply.form.text_input"
	SelFormSelect        = "apply.form.select"
	SelFormFileInput     = "apply.form.file_input"
	SelFormQuestionLabel = "apply.form.question_label"
	SelFormQuestionInput = "apply.form.question_input"
	SelFormRequiredMark  = "apply.form.required_marker"
	SelFormNext          = "apply.form.next"
	SelFormSubmit        = "apply.form.submit"
	SelSubmitConfirmed   = "apply.confirmation"

	// 高级筛选的UI控件，按筛选名索引
	SelFilterDatePosted      = "filter.date_posted"
	SelFilterWorkArrangement = "filter.work_arrangement"
	SelFilterExperience      = "filter.experience_level"
	SelFilterJobType         = "filter.job_type"
	SelFilterSalary          = "filter.salary_range"
	SelFilterCompanySize     = "filter.company_size"
	SelFilterIndustry        = "filter.industry"
	SelFilterRemoteOptions   = "filter.remote_options"
	SelFilterApply           = "filter.apply"
)

// LocatorStrategy 定位策略
type LocatorStrategy string

const (
	// ByCSS CSS选择器定位
	ByCSS LocatorStrategy = "css"
)

// Selector 一条语义名到定位串的映射
type Selector struct {
	Name     string
	Strategy LocatorStrategy
	Query    string
}

// Nth 返回定位到第i个匹配(1起)的派生选择器
func (s Selector) Nth(i int) Selector {
	return Selector{
		Name:     fmt.Sprintf("%s[%d]", s.Name, i),
		Strategy: s.Strategy,
		Query:    fmt.Sprintf("%s:nth-of-type(%d)", s.Query, i),
	}
}

// Within 返回限定在s内部的子选择器
func (s Selector) Within(child Selector) Selector {
	return Selector{
		Name:     child.Name,
		Strategy: s.Strategy,
		Query:    s.Query + " " + child.Query,
	}
}

// Catalog 版本化的选择器目录。运行时只读，构造后不再变更
type Catalog struct {
	version string
	entries map[string]Selector
}

// NewCatalog 从条目表构造目录
func NewCatalog(version string, entries map[string]Selector) *Catalog {
	copied := make(map[string]Selector, len(entries))
	for name, sel := range entries {
		sel.Name = name
		copied[name] = sel
	}
	return &Catalog{version: version, entries: copied}
}

// Version 目录版本号
func (c *Catalog) Version() string {
	return c.version
}

// Get 按语义名查找选择器
func (c *Catalog) Get(name string) (Selector, bool) {
	sel, ok := c.entries[name]
	return sel, ok
}

// MustGet 按语义名查找选择器，缺失视为目录配置错误
func (c *Catalog) MustGet(name string) Selector {
	sel, ok := c.entries[name]
	if !ok {
		panic(fmt.Sprintf("选择器目录 %s 缺少条目: %s", c.version, name))
	}
	return sel
}

// FilterSelector 返回某个高级筛选对应的UI控件选择器
func (c *Catalog) FilterSelector(filterName string) (Selector, bool) {
	return c.Get("filter." + filterName)
}

// DefaultCatalog 返回当前站点版式的内置目录
func DefaultCatalog(version string) *Catalog {
	if version == "" {
		version = "v1"
	}
	return NewCatalog(version, map[string]Selector{
		SelLoginUsername: {Strategy: ByCSS, Query: "input#session_key"},
		SelLoginPassword: {Strategy: ByCSS, Query: "input#session_password"},
		SelLoginSubmit:   {Strategy: ByCSS, Query: "button[type=submit][data-litms-control-urn=login-submit]"},
		SelLoginSuccess:  {Strategy: ByCSS, Query: "nav.global-nav"},

		SelResultsContainer: {Strategy: ByCSS, Query: "div.jobs-search-results-list"},
		SelJobCard:          {Strategy: ByCSS, Query: "li.jobs-search-results__list-item"},
		SelJobCardTitle:     {Strategy: ByCSS, Query: "a.job-card-list__title"},
		SelJobCardCompany:   {Strategy: ByCSS, Query: "span.job-card-container__primary-description"},
		SelJobCardLocation:  {Strategy: ByCSS, Query: "li.job-card-container__metadata-item"},
		SelJobCardLink:      {Strategy: ByCSS, Query: "a.job-card-list__title"},
		SelJobCardSalary:    {Strategy: ByCSS, Query: "span.job-card-container__salary-info"},
		SelJobCardWorkMode:  {Strategy: ByCSS, Query: "span.job-card-container__workplace-type"},
		SelNextPage:         {Strategy: ByCSS, Query: "button[aria-label='Page forward']"},

		SelApplyButton:       {Strategy: ByCSS, Query: "button.jobs-apply-button"},
		SelExternalApplyLink: {Strategy: ByCSS, Query: "a.jobs-apply-button--external"},

		SelFormTextInput:     {Strategy: ByCSS, Query: "div.jobs-easy-apply-content input[type=text], div.jobs-easy-apply-content input[type=email], div.jobs-easy-apply-content input[type=tel]"},
		SelFormSelect:        {Strategy: ByCSS, Query: "div.jobs-easy-apply-content select"},
		SelFormFileInput:     {Strategy: ByCSS, Query: "div.jobs-easy-apply-content input[type=file]"},
		SelFormQuestionLabel: {Strategy: ByCSS, Query: "div.jobs-easy-apply-content label.fb-form-element-label"},
		SelFormQuestionInput: {Strategy: ByCSS, Query: "div.jobs-easy-apply-content div.fb-form-element input, div.jobs-easy-apply-content div.fb-form-element textarea"},
		SelFormRequiredMark:  {Strategy: ByCSS, Query: "div.jobs-easy-apply-content span.fb-form-element__required"},
		SelFormNext:          {Strategy: ByCSS, Query: "button[aria-label='Continue to next step']"},
		SelFormSubmit:        {Strategy: ByCSS, Query: "button[aria-label='Submit application']"},
		SelSubmitConfirmed:   {Strategy: ByCSS, Query: "div.jobs-post-apply__confirmation"},

		SelFilterDatePosted:      {Strategy: ByCSS, Query: "button#filter-date-posted"},
		SelFilterWorkArrangement: {Strategy: ByCSS, Query: "button#filter-workplace-type"},
		SelFilterExperience:      {Strategy: ByCSS, Query: "button#filter-experience-level"},
		SelFilterJobType:         {Strategy: ByCSS, Query: "button#filter-job-type"},
		SelFilterSalary:          {Strategy: ByCSS, Query: "button#filter-salary"},
		SelFilterCompanySize:     {Strategy: ByCSS, Query: "button#filter-company-size"},
		SelFilterIndustry:        {Strategy: ByCSS, Query: "button#filter-industry"},
		SelFilterRemoteOptions:   {Strategy: ByCSS, Query: "button#filter-remote"},
		SelFilterApply:           {Strategy: ByCSS, Query: "button[data-control-name='filter_show_results']"},
	})
}
