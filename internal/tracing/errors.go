package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType 定义错误类型，便于分类和过滤
type ErrorType string

const (
	// ErrorTypeAuth 登录/认证错误
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeNavigation 页面导航错误
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeExtraction 职位提取错误
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeApplication 申请流程错误
	ErrorTypeApplication ErrorType = "application"
	// ErrorTypeInterruption 人工验证中断
	ErrorTypeInterruption ErrorType = "interruption"
	// ErrorTypeDB 数据库错误
	ErrorTypeDB ErrorType = "db"
	// ErrorTypeRedis Redis错误
	ErrorTypeRedis ErrorType = "redis"
	// ErrorTypeStorage 对象存储错误
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeTimeout 超时错误
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeValidation 验证错误
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeInternal 内部错误
	ErrorTypeInternal ErrorType = "internal"
)

// RecordError 记录错误，添加统一的错误类型和详情
func RecordError(span trace.Span, err error, errorType ErrorType) {
	if span == nil || err == nil {
		return
	}

	span.RecordError(err)

	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", err.Error()),
	)

	span.SetStatus(codes.Error, err.Error())
}

// RecordErrorWithInfo 记录错误并添加额外信息
func RecordErrorWithInfo(span trace.Span, err error, errorType ErrorType, attributes ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}

	span.RecordError(err)

	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", err.Error()),
	)

	if len(attributes) > 0 {
		span.SetAttributes(attributes...)
	}

	span.SetStatus(codes.Error, err.Error())
}

// RecordInterruption 记录一次人工验证中断。中断不是失败，span状态保持Ok，
// 但带上令牌与所处阶段，便于之后把resume调用串回来
func RecordInterruption(span trace.Span, resumeToken string, phase string) {
	if span == nil {
		return
	}

	span.SetAttributes(
		attribute.String("error.type", string(ErrorTypeInterruption)),
		attribute.String("automation.resume_token", resumeToken),
		attribute.String("automation.phase", phase),
		attribute.Bool("automation.requires_manual_intervention", true),
	)
}
