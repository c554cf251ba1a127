package automation

import (
	"strings"
)

// QuestionCategory 申请表单自由问题的规范类别
type QuestionCategory string

const (
	CategoryRelocation        QuestionCategory = "relocation"
	CategoryWorkAuthorization QuestionCategory = "work_authorization"
	CategoryYearsExperience   QuestionCategory = "years_of_experience"
	CategorySalaryExpectation QuestionCategory = "salary_expectation"
	CategoryNoticePeriod      QuestionCategory = "notice_period"
	CategoryStartDate         QuestionCategory = "start_date"
	CategoryEducation         QuestionCategory = "education"
	CategorySkills            QuestionCategory = "skills"
	CategoryRemotePreference  QuestionCategory = "remote_preference"
)

// categoryPriority 固定的类别优先级。关键词匹配按这个顺序逐类探测，
// 首个命中即返回。relocation 排在 remote_preference 之前，
// "Are you willing to relocate?" 不可能落进远程偏好
var categoryPriority = []QuestionCategory{
	CategoryRelocation,
	CategoryWorkAuthorization,
	CategoryYearsExperience,
	CategorySalaryExpectation,
	CategoryNoticePeriod,
	CategoryStartDate,
	CategoryEducation,
	CategorySkills,
	CategoryRemotePreference,
}

// categoryKeywords 类别的探测关键词。子串匹配而非全等，
// 因为同一问题在不同职位上措辞差异很大
var categoryKeywords = map[QuestionCategory][]string{
	CategoryRelocation:        {"relocat", "willing to move"},
	CategoryWorkAuthorization: {"authorized to work", "work authorization", "sponsorship", "visa", "legally entitled"},
	CategoryYearsExperience:   {"years of experience", "years' experience", "how many years"},
	CategorySalaryExpectation: {"salary", "compensation", "expected pay", "pay range"},
	CategoryNoticePeriod:      {"notice period", "current employer notice"},
	CategoryStartDate:         {"start date", "available to start", "when can you start", "availability"},
	CategoryEducation:         {"degree", "education", "graduat", "diploma"},
	CategorySkills:            {"skill", "proficien", "familiar with", "experience with"},
	CategoryRemotePreference:  {"remote", "work from home", "hybrid", "on-site"},
}

// MatchQuestion 把问题文本按关键词匹配到规范类别。
// 大小写不敏感；未命中返回 false，与"答错"是两回事
func MatchQuestion(question string) (QuestionCategory, bool) {
	normalized := strings.ToLower(strings.TrimSpace(question))
	if normalized == "" {
		return "", false
	}
	for _, cat := range categoryPriority {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(normalized, kw) {
				return cat, true
			}
		}
	}
	return "", false
}

// AnswerForQuestion 在档案里查找问题的默认答案。
// 返回 (答案, 是否命中类别且档案中存在答案)
func (p *ApplicantProfile) AnswerForQuestion(question string) (string, bool) {
	cat, ok := MatchQuestion(question)
	if !ok {
		return "", false
	}
	answer, ok := p.DefaultAnswers[cat]
	if !ok || answer == "" {
		return "", false
	}
	return answer, true
}
