package automation

import (
	"context"
	"time"
)

// Page 浏览器页面的最小操作面。会话状态机与申请引擎只依赖这个接口，
// 真实会话由chromedp实现，测试用脚本化的假页面替换
type Page interface {
	// Navigate 导航到目标地址，有界等待页面加载完成
	Navigate(ctx context.Context, url string) error

	// WaitVisible 有界等待元素可见
	WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) error

	// Click 点击元素
	Click(ctx context.Context, sel Selector) error

	// Fill 清空并填入文本
	Fill(ctx context.Context, sel Selector, value string) error

	// SelectOption 在下拉框中按值选择
	SelectOption(ctx context.Context, sel Selector, value string) error

	// Upload 向文件控件上传本地文件
	Upload(ctx context.Context, sel Selector, path string) error

	// Text 读取元素文本
	Text(ctx context.Context, sel Selector) (string, error)

	// Attr 读取元素属性，第二个返回值表示属性是否存在
	Attr(ctx context.Context, sel Selector, name string) (string, bool, error)

	// Count 统计匹配元素数量，零个匹配不是错误
	Count(ctx context.Context, sel Selector) (int, error)

	// Exists 元素是否存在（不等待）
	Exists(ctx context.Context, sel Selector) (bool, error)

	// BodyText 整页可见文本，用于统一的人工验证检测
	BodyText(ctx context.Context) (string, error)

	// Close 释放页面持有的浏览器资源。可重复调用
	Close() error
}

// BrowserFactory 按会话创建页面。编排器注入，测试替换为假实现
type BrowserFactory interface {
	NewPage(ctx context.Context) (Page, error)
}
