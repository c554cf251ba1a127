package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// AutomationModulePrefix 自动化模块
	AutomationModulePrefix = "automation"
	// ListingModulePrefix 职位模块
	ListingModulePrefix = "listing"

	// EntityResumeToken 恢复令牌实体
	EntityResumeToken = "resume_token"
	// EntitySummary 会话汇总实体
	EntitySummary = "summary"
	// EntitySeenSet 已见职位去重集合实体
	EntitySeenSet = "seen_set"

	// KeyResumeToken 恢复令牌镜像 (STRING, 带TTL)
	// 格式: app:automation:resume_token:{token}
	KeyResumeToken = AppPrefix + ":" + AutomationModulePrefix + ":" + EntityResumeToken + ":%s"

	// KeySessionSummary 会话运行汇总 (HASH)
	// 格式: app:automation:summary:{sessionID}
	KeySessionSummary = AppPrefix + ":" + AutomationModulePrefix + ":" + EntitySummary + ":%s"

	// KeySeenListings 已见职位ID集合 (SET)
	// 格式: app:listing:seen_set
	KeySeenListings = AppPrefix + ":" + ListingModulePrefix + ":" + EntitySeenSet
)
