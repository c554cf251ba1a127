package automation

import (
	"time"
)

// SearchMethod 搜索访问方式
type SearchMethod string

const (
	// MethodAPIOnly 轻量级访问，基础参数可直接编码进请求
	MethodAPIOnly SearchMethod = "api_only"
	// MethodBrowserAutomation 完整浏览器自动化
	MethodBrowserAutomation SearchMethod = "browser_automation"
)

// SearchRequest 一次职位搜索请求。提交后不可变，所有可选筛选留空表示未设置
type SearchRequest struct {
	Keywords      []string `json:"keywords"`
	Location      string   `json:"location"`
	DistanceMiles int      `json:"distance_miles,omitempty"` // 0 表示未设置

	// 高级筛选。目标站点只在交互式UI控件上暴露这些维度，
	// 任何一个被设置都会把搜索升级为浏览器自动化
	DatePosted      string `json:"date_posted,omitempty"`      // 例如 "past_week"
	WorkArrangement string `json:"work_arrangement,omitempty"` // on-site / remote / hybrid
	ExperienceLevel string `json:"experience_level,omitempty"`
	JobType         string `json:"job_type,omitempty"` // full-time / part-time / contract
	SalaryRange     string `json:"salary_range,omitempty"`
	CompanySize     string `json:"company_size,omitempty"`
	Industry        string `json:"industry,omitempty"`
	RemoteOptions   string `json:"remote_options,omitempty"`
}

// HasBasicParams 是否携带任何基础搜索参数
func (r *SearchRequest) HasBasicParams() bool {
	return len(r.Keywords) > 0 || r.Location != "" || r.DistanceMiles > 0
}

// DurationRange 估算时长的闭区间(秒)
type DurationRange struct {
	MinSeconds int `json:"min_seconds"`
	MaxSeconds int `json:"max_seconds"`
}

// StrategyDecision 策略分类结果。纯函数推导，不落库，每次请求重新计算
type StrategyDecision struct {
	Method            SearchMethod  `json:"method"`
	Reason            string        `json:"reason"`
	AppliedFilters    []string      `json:"applied_filters"`
	EstimatedDuration DurationRange `json:"estimated_duration"`
}

// EmploymentType 雇佣类型枚举
type EmploymentType string

const (
	EmploymentFullTime   EmploymentType = "full_time"
	EmploymentPartTime   EmploymentType = "part_time"
	EmploymentContract   EmploymentType = "contract"
	EmploymentInternship EmploymentType = "internship"
	EmploymentUnknown    EmploymentType = ""
)

// SeniorityLevel 资历级别枚举
type SeniorityLevel string

const (
	SeniorityEntry     SeniorityLevel = "entry"
	SeniorityMid       SeniorityLevel = "mid"
	SenioritySenior    SeniorityLevel = "senior"
	SeniorityLead      SeniorityLevel = "lead"
	SeniorityExecutive SeniorityLevel = "executive"
	SeniorityUnknown   SeniorityLevel = ""
)

// RemoteType 远程类型枚举
type RemoteType string

const (
	RemoteNone    RemoteType = "none"
	RemoteFull    RemoteType = "full"
	RemotePartial RemoteType = "partial"
	RemoteUnknown RemoteType = ""
)

// Listing 一条提取出的职位信息
type Listing struct {
	// 身份标识：站点分配的ID + 规范化URL
	SourceID string `json:"source_id"`
	URL      string `json:"url"`

	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Description string `json:"description"`

	Requirements     []string `json:"requirements,omitempty"`
	Responsibilities []string `json:"responsibilities,omitempty"`
	Benefits         []string `json:"benefits,omitempty"`

	SalaryMin      int    `json:"salary_min,omitempty"`
	SalaryMax      int    `json:"salary_max,omitempty"`
	SalaryCurrency string `json:"salary_currency,omitempty"`

	EmploymentType EmploymentType `json:"employment_type,omitempty"`
	Seniority      SeniorityLevel `json:"seniority,omitempty"`
	RemoteType     RemoteType     `json:"remote_type,omitempty"`

	// 申请入口解析到第三方站点时才填写。为空表示只能走站内引导式申请流程，
	// 两者互斥，站内申请的职位永远不会带这个字段
	ExternalApplicationURL string `json:"external_application_url,omitempty"`

	// 工作安排标签，独立于RemoteType。取值 On-site / Remote / Hybrid，可为空
	WorkArrangement string `json:"work_arrangement,omitempty"`

	PostedAt      *time.Time `json:"posted_at,omitempty"`
	ScrapedAt     time.Time  `json:"scraped_at"`
	LastUpdatedAt time.Time  `json:"last_updated_at"`

	// 当前用户是否已收藏，返回给Web层时填充
	Favorited bool `json:"favorited,omitempty"`
}

// InPageApplyOnly 该职位是否只能走站内引导式申请
func (l *Listing) InPageApplyOnly() bool {
	return l.ExternalApplicationURL == ""
}

// ApplicantProfile 申请人档案。每次自动化运行加载一次，引擎只读
type ApplicantProfile struct {
	FullName string `yaml:"full_name" json:"full_name"`
	Email    string `yaml:"email" json:"email"`
	Phone    string `yaml:"phone" json:"phone"`
	Location string `yaml:"location" json:"location"`

	// 对象存储中的文件key，运行前解析为本地路径
	ResumeObjectKey      string `yaml:"resume_object_key" json:"resume_object_key"`
	CoverLetterObjectKey string `yaml:"cover_letter_object_key" json:"cover_letter_object_key"`
	// 解析后的本地路径，表单上传使用
	ResumePath      string `yaml:"resume_path" json:"resume_path"`
	CoverLetterPath string `yaml:"cover_letter_path" json:"cover_letter_path"`

	CoverLetterText string `yaml:"cover_letter_text" json:"cover_letter_text"`

	// 策略开关
	AutoApplyEnabled          bool `yaml:"auto_apply_enabled" json:"auto_apply_enabled"`
	MaxApplicationsPerSession int  `yaml:"max_applications_per_session" json:"max_applications_per_session"`
	SkipComplexApplications   bool `yaml:"skip_complex_applications" json:"skip_complex_applications"`
	RequireManualReview       bool `yaml:"require_manual_review" json:"require_manual_review"`

	// 规范问题类别到默认答案的映射
	DefaultAnswers map[QuestionCategory]string `yaml:"default_answers" json:"default_answers"`
}

// ApplicationStatus 引导式申请的终态
type ApplicationStatus string

const (
	// ApplicationSubmitted 检测到提交确认
	ApplicationSubmitted ApplicationStatus = "submitted"
	// ApplicationAbortedComplex skip_complex_applications 策略放弃，不是错误
	ApplicationAbortedComplex ApplicationStatus = "aborted_complex"
	// ApplicationAbortedManualReview require_manual_review 策略放弃，待人工处理
	ApplicationAbortedManualReview ApplicationStatus = "aborted_manual_review"
	// ApplicationFailed 流程失败
	ApplicationFailed ApplicationStatus = "failed"
)

// ApplicationOutcome 一次引导式申请的结果
type ApplicationOutcome struct {
	ListingID           string            `json:"listing_id"`
	ListingURL          string            `json:"listing_url,omitempty"`
	Status              ApplicationStatus `json:"status"`
	StepsCompleted      int               `json:"steps_completed"`
	UnansweredQuestions []string          `json:"unanswered_questions,omitempty"`
	Message             string            `json:"message,omitempty"`
	CompletedAt         time.Time         `json:"completed_at"`
}

// SessionState 会话状态机的状态
type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateAuthenticating  SessionState = "authenticating"
	StateAuthenticated   SessionState = "authenticated"
	StateNavigating      SessionState = "navigating"
	StateSearchApplied   SessionState = "search_applied"
	StateExtracting      SessionState = "extracting_page"
	StatePaginating      SessionState = "paginating"
	StateDone            SessionState = "done"
	StateFailed          SessionState = "failed"
	StateInterrupted     SessionState = "interrupted"
)

// Counters 会话运行计数
type Counters struct {
	JobsFound             int `json:"jobs_found"`
	ApplicationsSubmitted int `json:"applications_submitted"`
	Errors                int `json:"errors"`
}

// SearchResult 搜索返回给Web层的载荷
type SearchResult struct {
	Decision StrategyDecision `json:"decision"`
	Listings []Listing        `json:"listings"`
	// 会话中途失败时已提取的部分结果仍会返回，并打上不完整标记
	Incomplete bool   `json:"incomplete,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ResumeResult resume调用的返回载荷，搜索恢复带Listings，申请恢复带Outcome
type ResumeResult struct {
	Listings []Listing           `json:"listings,omitempty"`
	Result   *SearchResult       `json:"search_result,omitempty"`
	Outcome  *ApplicationOutcome `json:"outcome,omitempty"`
}

// InterruptionState 人工验证中断快照。检测到挑战的瞬间创建，
// 被resume调用恰好消费一次，不会持久化超过一次会话恢复的生命周期
type InterruptionState struct {
	Token      string
	SessionID  string
	DetectedAt time.Time
	ExpiresAt  time.Time

	// 重入点
	Phase SessionState

	// 搜索中断时的上下文
	Request   *SearchRequest
	PageNum   int
	Collected []Listing

	// 申请中断时的上下文
	Listing *Listing
	Profile *ApplicantProfile
	Step    int
}
