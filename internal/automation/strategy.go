package automation

import (
	"strings"

	"github.com/yonid4/job-postings-scraper-sub002/internal/constants"
)

// advancedFilter 高级筛选的注册表条目。表顺序即稳定输出顺序：
// date, work arrangement, experience, job type, salary, company size, industry, remote options
type advancedFilter struct {
	name   string
	phrase string
	isSet  func(*SearchRequest) bool
}

var advancedFilters = []advancedFilter{
	{"date_posted", "date posted filtering", func(r *SearchRequest) bool { return r.DatePosted != "" }},
	{"work_arrangement", "work arrangement filtering", func(r *SearchRequest) bool { return r.WorkArrangement != "" }},
	{"experience_level", "experience level filtering", func(r *SearchRequest) bool { return r.ExperienceLevel != "" }},
	{"job_type", "job type filtering", func(r *SearchRequest) bool { return r.JobType != "" }},
	{"salary_range", "salary filtering", func(r *SearchRequest) bool { return r.SalaryRange != "" }},
	{"company_size", "company size filtering", func(r *SearchRequest) bool { return r.CompanySize != "" }},
	{"industry", "industry filtering", func(r *SearchRequest) bool { return r.Industry != "" }},
	{"remote_options", "remote options filtering", func(r *SearchRequest) bool { return r.RemoteOptions != "" }},
}

// Classify 判定一次搜索需要轻量级访问还是完整浏览器自动化。
// 纯函数：同一请求永远得到同一决策，无副作用，可脱离浏览器独立测试。
//
// 规则：
//   - 关键词/地点/距离视为可通过非交互访问满足的基础参数
//   - 任何高级筛选只在站点的交互式UI控件上存在，命中即走浏览器自动化
//   - 完全没有参数时保守回退到浏览器自动化（行为保留自上游，理由未经确认）
func Classify(req *SearchRequest) StrategyDecision {
	applied := make([]string, 0, len(advancedFilters))
	phrases := make([]string, 0, len(advancedFilters))
	for _, f := range advancedFilters {
		if f.isSet(req) {
			applied = append(applied, f.name)
			phrases = append(phrases, f.phrase)
		}
	}

	if len(applied) == 0 {
		if !req.HasBasicParams() {
			// 无任何参数，默认自动化"以求稳妥"
			return StrategyDecision{
				Method:            MethodBrowserAutomation,
				Reason:            "no search parameters provided - defaulting to browser automation for safety",
				AppliedFilters:    []string{},
				EstimatedDuration: automationDuration(0),
			}
		}
		return StrategyDecision{
			Method:            MethodAPIOnly,
			Reason:            "basic parameters only (keywords/location/distance) - lightweight access is sufficient",
			AppliedFilters:    []string{},
			EstimatedDuration: DurationRange{MinSeconds: constants.APIOnlyMinSeconds, MaxSeconds: constants.APIOnlyMaxSeconds},
		}
	}

	return StrategyDecision{
		Method:            MethodBrowserAutomation,
		Reason:            "advanced filters require browser automation: " + strings.Join(phrases, ", "),
		AppliedFilters:    applied,
		EstimatedDuration: automationDuration(len(applied)),
	}
}

// automationDuration 自动化时长估算：基础区间加每个已应用高级筛选的固定增量。
// 上报闭区间，设定调用方预期而非SLA
func automationDuration(appliedCount int) DurationRange {
	extra := appliedCount * constants.AutomationPerFilterSeconds
	return DurationRange{
		MinSeconds: constants.AutomationBaseMinSeconds + extra,
		MaxSeconds: constants.AutomationBaseMaxSeconds + extra,
	}
}
