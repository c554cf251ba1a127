package automation

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrAuthenticationFailed = errors.New("登录认证失败")
	ErrElementNotFound      = errors.New("页面元素未找到")
	ErrTimeout              = errors.New("有界等待超时")
	ErrExtractionFailed     = errors.New("职位卡片提取失败")
	ErrUnresolvedField      = errors.New("必填字段无法解析")
	ErrExpiredInterruption  = errors.New("恢复令牌未知或已过期")
	ErrPendingInterruption  = errors.New("会话已存在待处理的中断")
	ErrSessionCancelled     = errors.New("会话已取消")
)

// AutomationError 包含会话上下文的自定义错误
type AutomationError struct {
	SessionID string
	Op        string
	BaseErr   error
	Detail    string
}

func (e *AutomationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 会话:%s): %s", e.BaseErr, e.Op, e.SessionID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 会话:%s)", e.BaseErr, e.Op, e.SessionID)
}

func (e *AutomationError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *AutomationError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewAuthError(sessionID, detail string) error {
	return &AutomationError{
		SessionID: sessionID,
		Op:        "authenticate",
		BaseErr:   ErrAuthenticationFailed,
		Detail:    detail,
	}
}

func NewElementNotFoundError(sessionID, op, detail string) error {
	return &AutomationError{
		SessionID: sessionID,
		Op:        op,
		BaseErr:   ErrElementNotFound,
		Detail:    detail,
	}
}

func NewTimeoutError(sessionID, op, detail string) error {
	return &AutomationError{
		SessionID: sessionID,
		Op:        op,
		BaseErr:   ErrTimeout,
		Detail:    detail,
	}
}

func NewExtractionError(sessionID, detail string) error {
	return &AutomationError{
		SessionID: sessionID,
		Op:        "extract",
		BaseErr:   ErrExtractionFailed,
		Detail:    detail,
	}
}

func NewUnresolvedFieldError(sessionID, detail string) error {
	return &AutomationError{
		SessionID: sessionID,
		Op:        "apply",
		BaseErr:   ErrUnresolvedField,
		Detail:    detail,
	}
}

func NewExpiredInterruptionError(token string) error {
	return &AutomationError{
		Op:      "resume",
		BaseErr: ErrExpiredInterruption,
		Detail:  fmt.Sprintf("token=%s", token),
	}
}

func NewPendingInterruptionError(sessionID string) error {
	return &AutomationError{
		SessionID: sessionID,
		Op:        "interrupt",
		BaseErr:   ErrPendingInterruption,
		Detail:    "同一会话同时只允许一个待处理中断",
	}
}

// ManualInterventionRequired 不是普通失败，而是一个挂起信号：
// 自动化被人工验证挑战阻断，人工在同一浏览器会话里清除挑战后，
// 用 ResumeToken 调用 resume 可以从被捕获的状态透明地继续
type ManualInterventionRequired struct {
	Message     string
	ResumeToken string
}

func (e *ManualInterventionRequired) Error() string {
	return fmt.Sprintf("需要人工介入: %s (resume_token=%s)", e.Message, e.ResumeToken)
}

// AsManualIntervention 判断错误链中是否包含挂起信号
func AsManualIntervention(err error) (*ManualInterventionRequired, bool) {
	var m *ManualInterventionRequired
	if errors.As(err, &m) {
		return m, true
	}
	return nil, false
}
