package constants

import "time"

const (
	// Application-level constants
	ServiceName = "job-agent"

	// 策略分类器的时长估算常量(秒)。上报的是区间而不是单点，用于设定调用方预期
	APIOnlyMinSeconds = 5
	APIOnlyMaxSeconds = 15
	// 浏览器自动化基础区间，每命中一个高级筛选追加一次增量
	AutomationBaseMinSeconds      = 45
	AutomationBaseMaxSeconds      = 90
	AutomationPerFilterSeconds    = 15

	// 会话内状态缓存有效期
	SessionSummaryExpire = 24 * time.Hour
	// 已见职位去重集合有效期
	SeenListingExpire = 7 * 24 * time.Hour
)
