package automation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/yonid4/job-postings-scraper-sub002/internal/config"
	"github.com/yonid4/job-postings-scraper-sub002/internal/tracing"
	"github.com/yonid4/job-postings-scraper-sub002/pkg/ratelimit"
)

var sessionTracer = otel.Tracer("job-agent/automation/session")

// Session 一次浏览器自动化会话的状态机。
// 单逻辑线程驱动：同一会话上的操作绝不会被两个调用方并发触发
type Session struct {
	id      string
	state   SessionState
	page    Page
	catalog *Catalog
	site    *config.SiteConfig
	cfg     *config.AutomationConfig
	monitor *Monitor
	limiter *ratelimit.TokenBucket
	logger  zerolog.Logger
	rnd     *rand.Rand

	counters Counters
	closed   bool
}

// NewSession 创建会话。page的生命周期由会话接管
func NewSession(page Page, catalog *Catalog, site *config.SiteConfig, cfg *config.AutomationConfig, monitor *Monitor, limiter *ratelimit.TokenBucket, logger zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		state:   StateUnauthenticated,
		page:    page,
		catalog: catalog,
		site:    site,
		cfg:     cfg,
		monitor: monitor,
		limiter: limiter,
		logger:  logger.With().Str("component", "session").Str("session_id", id).Logger(),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ID 会话标识
func (s *Session) ID() string {
	return s.id
}

// State 当前状态
func (s *Session) State() SessionState {
	return s.state
}

// Counters 当前运行计数的副本
func (s *Session) Counters() Counters {
	return s.counters
}

// Close 释放浏览器资源。可重复调用，所有退出路径（包括panic恢复和取消）都必须到达
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.page.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("关闭浏览器页面失败")
	}
	s.logger.Debug().Str("final_state", string(s.state)).Msg("会话资源已释放")
}

// setState 状态迁移并记录
func (s *Session) setState(next SessionState) {
	s.logger.Debug().
		Str("from", string(s.state)).
		Str("to", string(next)).
		Msg("会话状态迁移")
	s.state = next
}

// pace 每个页面动作前的节奏控制：全局令牌桶限速 + [min,max]随机延迟。
// 随机延迟是反检测的正确性要求，任何重实现都必须保留
func (s *Session) pace(ctx context.Context) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	minD := time.Duration(s.cfg.MinActionDelayMS) * time.Millisecond
	maxD := time.Duration(s.cfg.MaxActionDelayMS) * time.Millisecond
	delay := minD
	if maxD > minD {
		delay = minD + time.Duration(s.rnd.Int63n(int64(maxD-minD)))
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// withRetry 有界等待失败后的统一重试规则：元素未找到/超时重试一次（重新查找元素），
// 其他错误不重试——重放半提交的申请有重复提交风险
func (s *Session) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if !isRetryable(err) {
		return err
	}
	s.logger.Debug().Str("op", op).Err(err).Msg("有界等待失败，重新查找元素并重试一次")
	if pauseErr := s.pace(ctx); pauseErr != nil {
		return pauseErr
	}
	return fn()
}

func isRetryable(err error) bool {
	return errorIsAny(err, ErrTimeout, ErrElementNotFound)
}

// scanForChallenge 动作后的统一挑战探测：读取整页文本走唯一的检测规则
func (s *Session) scanForChallenge(ctx context.Context) bool {
	body, err := s.page.BodyText(ctx)
	if err != nil {
		return ChallengeInError(err)
	}
	if !ChallengeDetected(body) {
		return false
	}
	s.logger.Warn().
		Str("page_text", tracing.SafePageText(body)).
		Msg("页面文本命中人工验证关键词")
	return true
}

// suspend 挂起会话并返回中断信号。协议违规（重复挑战）时转入Failed
func (s *Session) suspend(ctx context.Context, snap *InterruptionState) error {
	sig, err := s.monitor.Suspend(ctx, s, snap)
	if err != nil {
		s.setState(StateFailed)
		return err
	}
	s.setState(StateInterrupted)
	return sig
}

// login 认证阶段。snap在检出挑战时提供完整的重入快照
func (s *Session) login(ctx context.Context, snap func() *InterruptionState) error {
	ctx, span := sessionTracer.Start(ctx, "session.login")
	defer span.End()

	s.setState(StateAuthenticating)

	loginURL := s.site.BaseURL + s.site.LoginPath
	if err := s.pace(ctx); err != nil {
		return err
	}
	if err := s.page.Navigate(ctx, loginURL); err != nil {
		if ChallengeInError(err) {
			st := snap()
			st.Phase = StateAuthenticating
			return s.suspend(ctx, st)
		}
		s.setState(StateFailed)
		tracing.RecordError(span, err, tracing.ErrorTypeNavigation)
		return NewAuthError(s.id, fmt.Sprintf("打开登录页失败: %v", err))
	}

	if s.scanForChallenge(ctx) {
		st := snap()
		st.Phase = StateAuthenticating
		return s.suspend(ctx, st)
	}

	// 登录表单缺失是致命错误，不重试
	userSel := s.catalog.MustGet(SelLoginUsername)
	if ok, err := s.page.Exists(ctx, userSel); err != nil || !ok {
		s.setState(StateFailed)
		err = NewAuthError(s.id, "登录表单缺失")
		tracing.RecordError(span, err, tracing.ErrorTypeAuth)
		return err
	}

	if err := s.pace(ctx); err != nil {
		return err
	}
	if err := s.page.Fill(ctx, userSel, s.site.Username); err != nil {
		s.setState(StateFailed)
		return NewAuthError(s.id, fmt.Sprintf("填写账号失败: %v", err))
	}
	if err := s.page.Fill(ctx, s.catalog.MustGet(SelLoginPassword), s.site.Password); err != nil {
		s.setState(StateFailed)
		return NewAuthError(s.id, fmt.Sprintf("填写密码失败: %v", err))
	}
	if err := s.pace(ctx); err != nil {
		return err
	}
	if err := s.page.Click(ctx, s.catalog.MustGet(SelLoginSubmit)); err != nil {
		s.setState(StateFailed)
		return NewAuthError(s.id, fmt.Sprintf("提交登录表单失败: %v", err))
	}

	// 等待登录成功标记。超时后先探测挑战再裁定失败
	err := s.page.WaitVisible(ctx, s.catalog.MustGet(SelLoginSuccess), s.cfg.ElementWait())
	if err != nil {
		if s.scanForChallenge(ctx) || ChallengeInError(err) {
			st := snap()
			st.Phase = StateAuthenticating
			return s.suspend(ctx, st)
		}
		s.setState(StateFailed)
		err = NewAuthError(s.id, "登录未确认，疑似凭据错误")
		tracing.RecordError(span, err, tracing.ErrorTypeAuth)
		return err
	}

	s.setState(StateAuthenticated)
	s.logger.Info().Msg("登录成功")
	return nil
}

// RunSearch 完整搜索流程：登录、导航、翻页提取。
// 返回的Listing序列按首次出现顺序排列并按SourceID去重；
// 会话失败时已提取的部分结果仍然返回给调用方
func (s *Session) RunSearch(ctx context.Context, req *SearchRequest) ([]Listing, error) {
	ctx, span := sessionTracer.Start(ctx, "session.run_search")
	defer span.End()

	searchSnap := func() *InterruptionState {
		return &InterruptionState{Request: req, PageNum: 1}
	}
	if err := s.login(ctx, searchSnap); err != nil {
		return nil, err
	}

	if err := s.navigateSearch(ctx, req); err != nil {
		return nil, err
	}

	return s.extractPages(ctx, req, 1, nil)
}

// ResumeSearch 从中断快照继续搜索。重放同一请求，从被捕获的页码续跑
func (s *Session) ResumeSearch(ctx context.Context, st *InterruptionState) ([]Listing, error) {
	if s.state != StateInterrupted {
		return st.Collected, NewExpiredInterruptionError(st.Token)
	}

	switch st.Phase {
	case StateAuthenticating:
		// 人工清障后登录通常已经完成，确认标记后走完整流程
		if err := s.page.WaitVisible(ctx, s.catalog.MustGet(SelLoginSuccess), s.cfg.ElementWait()); err != nil {
			s.setState(StateFailed)
			return nil, NewAuthError(s.id, "恢复后仍未确认登录")
		}
		s.setState(StateAuthenticated)
		if err := s.navigateSearch(ctx, st.Request); err != nil {
			return nil, err
		}
		return s.extractPages(ctx, st.Request, 1, nil)
	default:
		// 从被捕获的页码继续提取。该页重新提取，按SourceID去重保证总数一致
		s.setState(StateExtracting)
		startPage := st.PageNum
		if startPage < 1 {
			startPage = 1
		}
		return s.extractPages(ctx, st.Request, startPage, st.Collected)
	}
}

// navigateSearch 构造目标URL并恰好导航一次，然后把仅存在于UI控件上的筛选逐个应用
func (s *Session) navigateSearch(ctx context.Context, req *SearchRequest) error {
	ctx, span := sessionTracer.Start(ctx, "session.navigate_search")
	defer span.End()

	s.setState(StateNavigating)

	target := s.buildSearchURL(req)
	if err := s.pace(ctx); err != nil {
		return err
	}
	if err := s.page.Navigate(ctx, target); err != nil {
		if ChallengeInError(err) {
			return s.suspend(ctx, &InterruptionState{Phase: StateNavigating, Request: req, PageNum: 1})
		}
		s.setState(StateFailed)
		tracing.RecordError(span, err, tracing.ErrorTypeNavigation)
		return fmt.Errorf("导航到搜索页失败: %w", err)
	}
	if s.scanForChallenge(ctx) {
		return s.suspend(ctx, &InterruptionState{Phase: StateNavigating, Request: req, PageNum: 1})
	}

	if err := s.applyUIFilters(ctx, req); err != nil {
		return err
	}

	err := s.withRetry(ctx, "wait_results", func() error {
		return s.page.WaitVisible(ctx, s.catalog.MustGet(SelResultsContainer), s.cfg.ElementWait())
	})
	if err != nil {
		s.setState(StateFailed)
		tracing.RecordError(span, err, tracing.ErrorTypeTimeout)
		return fmt.Errorf("搜索结果未出现: %w", err)
	}

	s.setState(StateSearchApplied)
	return nil
}

// buildSearchURL 把基础参数编码进查询串。高级筛选不在这里处理，
// 站点没有为它们提供稳定的查询参数
func (s *Session) buildSearchURL(req *SearchRequest) string {
	values := url.Values{}
	if len(req.Keywords) > 0 {
		values.Set("keywords", strings.Join(req.Keywords, " "))
	}
	if req.Location != "" {
		values.Set("location", req.Location)
	}
	if req.DistanceMiles > 0 {
		values.Set("distance", fmt.Sprintf("%d", req.DistanceMiles))
	}
	target := s.site.BaseURL + s.site.SearchPath
	if encoded := values.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return target
}

// applyUIFilters 应用高级筛选：点开控件、选中值。目录里没有对应控件的筛选跳过并告警
func (s *Session) applyUIFilters(ctx context.Context, req *SearchRequest) error {
	applied := 0
	for _, f := range advancedFilters {
		if !f.isSet(req) {
			continue
		}
		sel, ok := s.catalog.FilterSelector(f.name)
		if !ok {
			s.logger.Warn().Str("filter", f.name).Msg("选择器目录缺少该筛选的UI控件，跳过")
			continue
		}
		value := filterValue(req, f.name)
		err := s.withRetry(ctx, "filter_"+f.name, func() error {
			if err := s.pace(ctx); err != nil {
				return err
			}
			if err := s.page.Click(ctx, sel); err != nil {
				return err
			}
			option := Selector{
				Name:     sel.Name + ".option",
				Strategy: ByCSS,
				Query:    fmt.Sprintf("li[data-value='%s']", value),
			}
			return s.page.Click(ctx, option)
		})
		if err != nil {
			if ChallengeInError(err) {
				return s.suspend(ctx, &InterruptionState{Phase: StateNavigating, Request: req, PageNum: 1})
			}
			s.counters.Errors++
			s.logger.Warn().Str("filter", f.name).Err(err).Msg("应用UI筛选失败，继续其余筛选")
			continue
		}
		applied++
	}

	if applied > 0 {
		if applySel, ok := s.catalog.Get(SelFilterApply); ok {
			if exists, _ := s.page.Exists(ctx, applySel); exists {
				if err := s.pace(ctx); err != nil {
					return err
				}
				if err := s.page.Click(ctx, applySel); err != nil {
					s.logger.Warn().Err(err).Msg("点击筛选确认按钮失败")
				}
			}
		}
	}
	return nil
}

// filterValue 取出请求里某个高级筛选的值
func filterValue(req *SearchRequest, name string) string {
	switch name {
	case "date_posted":
		return req.DatePosted
	case "work_arrangement":
		return req.WorkArrangement
	case "experience_level":
		return req.ExperienceLevel
	case "job_type":
		return req.JobType
	case "salary_range":
		return req.SalaryRange
	case "company_size":
		return req.CompanySize
	case "industry":
		return req.Industry
	case "remote_options":
		return req.RemoteOptions
	}
	return ""
}

// extractPages 翻页提取主循环。collected携带恢复场景下已积累的结果
func (s *Session) extractPages(ctx context.Context, req *SearchRequest, startPage int, collected []Listing) ([]Listing, error) {
	ctx, span := sessionTracer.Start(ctx, "session.extract_pages")
	defer span.End()

	seen := make(map[string]struct{}, len(collected))
	for _, l := range collected {
		seen[l.SourceID] = struct{}{}
	}

	pageNum := startPage
	for {
		// 取消只在步骤间生效
		if err := ctx.Err(); err != nil {
			s.setState(StateFailed)
			return collected, fmt.Errorf("%w: %v", ErrSessionCancelled, err)
		}

		s.setState(StateExtracting)
		if s.scanForChallenge(ctx) {
			snap := &InterruptionState{
				Phase:     StateExtracting,
				Request:   req,
				PageNum:   pageNum,
				Collected: collected,
			}
			return collected, s.suspend(ctx, snap)
		}

		pageListings := s.extractCurrentPage(ctx)
		for _, l := range pageListings {
			if _, dup := seen[l.SourceID]; dup {
				continue
			}
			seen[l.SourceID] = struct{}{}
			collected = append(collected, l)
			if len(collected) >= s.cfg.MaxJobsPerSession {
				break
			}
		}
		s.counters.JobsFound = len(collected)
		s.logger.Info().
			Int("page", pageNum).
			Int("page_listings", len(pageListings)).
			Int("total", len(collected)).
			Msg("当前页提取完成")

		if len(collected) >= s.cfg.MaxJobsPerSession || pageNum >= s.cfg.MaxPagesPerSearch {
			break
		}

		// 翻页：没有下一页控件则正常结束
		s.setState(StatePaginating)
		nextSel := s.catalog.MustGet(SelNextPage)
		hasNext, err := s.page.Exists(ctx, nextSel)
		if err != nil || !hasNext {
			break
		}
		err = s.withRetry(ctx, "next_page", func() error {
			if err := s.pace(ctx); err != nil {
				return err
			}
			if err := s.page.Click(ctx, nextSel); err != nil {
				return err
			}
			return s.page.WaitVisible(ctx, s.catalog.MustGet(SelResultsContainer), s.cfg.ElementWait())
		})
		if err != nil {
			if ChallengeInError(err) || s.scanForChallenge(ctx) {
				snap := &InterruptionState{
					Phase:     StatePaginating,
					Request:   req,
					PageNum:   pageNum + 1,
					Collected: collected,
				}
				return collected, s.suspend(ctx, snap)
			}
			// 翻页失败按会话级失败处理，但已有结果仍然交还调用方
			s.counters.Errors++
			s.setState(StateFailed)
			tracing.RecordError(span, err, tracing.ErrorTypeNavigation)
			return collected, fmt.Errorf("翻页失败: %w", err)
		}
		pageNum++
	}

	s.setState(StateDone)
	return collected, nil
}

// errorIsAny errors.Is 的多目标便捷封装
func errorIsAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
