package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/yonid4/job-postings-scraper-sub002/internal/config"
)

// ChromeFactory 基于chromedp的浏览器工厂。每个会话独占一个浏览器实例
type ChromeFactory struct {
	cfg    *config.AutomationConfig
	site   *config.SiteConfig
	logger zerolog.Logger
}

// NewChromeFactory 创建浏览器工厂
func NewChromeFactory(cfg *config.AutomationConfig, site *config.SiteConfig, logger zerolog.Logger) *ChromeFactory {
	return &ChromeFactory{
		cfg:    cfg,
		site:   site,
		logger: logger.With().Str("component", "chrome_factory").Logger(),
	}
}

// NewPage 启动一个新的浏览器实例并返回其页面句柄
func (f *ChromeFactory) NewPage(ctx context.Context) (Page, error) {
	opts := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...,
	)
	opts = append(opts,
		chromedp.Flag("headless", f.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
	)
	if f.site.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.site.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// 先空跑一次，确保浏览器进程真正启动
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	f.logger.Debug().Bool("headless", f.cfg.Headless).Msg("浏览器实例已启动")

	return &ChromePage{
		ctx:     tabCtx,
		cancels: []context.CancelFunc{cancelTab, cancelAlloc},
		navWait: f.cfg.NavigationWait(),
	}, nil
}

// ChromePage Page接口的chromedp实现
type ChromePage struct {
	ctx     context.Context
	cancels []context.CancelFunc
	navWait time.Duration

	closeOnce sync.Once
}

// run 在页面上下文内按有界超时执行chromedp动作。
// 调用方取消只在动作之间生效，进行中的动作不会被打断
func (p *ChromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx := p.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(p.ctx, timeout)
		defer cancel()
	}

	err := chromedp.Run(runCtx, actions...)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: 页面动作超时", ErrTimeout)
	}
	return err
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, p.navWait, chromedp.Navigate(url))
}

func (p *ChromePage) WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) error {
	err := p.run(ctx, timeout, chromedp.WaitVisible(sel.Query, chromedp.ByQuery))
	if errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: 等待元素 %s 可见", ErrTimeout, sel.Name)
	}
	return err
}

func (p *ChromePage) Click(ctx context.Context, sel Selector) error {
	return p.run(ctx, p.navWait, chromedp.Click(sel.Query, chromedp.ByQuery))
}

func (p *ChromePage) Fill(ctx context.Context, sel Selector, value string) error {
	return p.run(ctx, p.navWait,
		chromedp.SetValue(sel.Query, "", chromedp.ByQuery),
		chromedp.SendKeys(sel.Query, value, chromedp.ByQuery),
	)
}

func (p *ChromePage) SelectOption(ctx context.Context, sel Selector, value string) error {
	return p.run(ctx, p.navWait, chromedp.SetValue(sel.Query, value, chromedp.ByQuery))
}

func (p *ChromePage) Upload(ctx context.Context, sel Selector, path string) error {
	return p.run(ctx, p.navWait, chromedp.SetUploadFiles(sel.Query, []string{path}, chromedp.ByQuery))
}

func (p *ChromePage) Text(ctx context.Context, sel Selector) (string, error) {
	var out string
	err := p.run(ctx, p.navWait, chromedp.Text(sel.Query, &out, chromedp.ByQuery))
	return out, err
}

func (p *ChromePage) Attr(ctx context.Context, sel Selector, name string) (string, bool, error) {
	var value string
	var ok bool
	err := p.run(ctx, p.navWait, chromedp.AttributeValue(sel.Query, name, &value, &ok, chromedp.ByQuery))
	return value, ok, err
}

func (p *ChromePage) Count(ctx context.Context, sel Selector) (int, error) {
	var nodes []*cdp.Node
	err := p.run(ctx, p.navWait, chromedp.Nodes(sel.Query, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (p *ChromePage) Exists(ctx context.Context, sel Selector) (bool, error) {
	n, err := p.Count(ctx, sel)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *ChromePage) BodyText(ctx context.Context) (string, error) {
	var out string
	err := p.run(ctx, p.navWait, chromedp.Text("body", &out, chromedp.ByQuery))
	return out, err
}

// Close 关闭标签页与浏览器进程。所有退出路径都必须走到这里，
// 活浏览器泄漏是这个系统最需要防御的故障模式
func (p *ChromePage) Close() error {
	p.closeOnce.Do(func() {
		for _, cancel := range p.cancels {
			cancel()
		}
	})
	return nil
}
