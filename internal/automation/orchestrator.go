package automation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/semaphore"

	"github.com/yonid4/job-postings-scraper-sub002/internal/config"
	"github.com/yonid4/job-postings-scraper-sub002/internal/tracing"
	"github.com/yonid4/job-postings-scraper-sub002/pkg/ratelimit"
)

var orchestratorTracer = otel.Tracer("job-agent/automation/orchestrator")

// ListingStore 职位与申请记录的持久化面，MySQL实现
type ListingStore interface {
	// SaveListing 按SourceID幂等落库，已存在则更新
	SaveListing(ctx context.Context, listing *Listing) error
	// GetListing 按SourceID查询，未找到返回nil
	GetListing(ctx context.Context, sourceID string) (*Listing, error)
	// SaveApplicationRecord 记录一次申请结果
	SaveApplicationRecord(ctx context.Context, outcome *ApplicationOutcome) error
	// IsFavorited 当前用户是否收藏了该职位
	IsFavorited(ctx context.Context, sourceID string) (bool, error)
}

// ArtifactStore 申请材料的对象存储面，MinIO实现。
// FetchArtifact 把对象下载到本地并返回路径，表单上传需要本地文件
type ArtifactStore interface {
	FetchArtifact(ctx context.Context, objectKey string) (string, error)
}

// OutcomePublisher 申请结果的事件发布面，RabbitMQ实现
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome *ApplicationOutcome) error
}

// SummarySink 会话运行摘要的记录面，Redis实现
type SummarySink interface {
	RecordSessionSummary(ctx context.Context, sessionID string, state SessionState, counters Counters) error
}

// Orchestrator 自动化编排器。对Web层暴露搜索/申请/恢复三个入口，
// 内部负责策略分类、会话生命周期、并发上限和结果持久化
type Orchestrator struct {
	cfg       *config.Config
	catalog   *Catalog
	factory   BrowserFactory
	monitor   *Monitor
	store     ListingStore
	artifacts ArtifactStore
	publisher OutcomePublisher
	summaries SummarySink
	limiter   *ratelimit.TokenBucket
	sem       *semaphore.Weighted
	logger    zerolog.Logger
}

// NewOrchestrator 创建编排器。store/artifacts/publisher/summaries 允许为nil，
// 对应能力降级为仅日志
func NewOrchestrator(
	cfg *config.Config,
	catalog *Catalog,
	factory BrowserFactory,
	monitor *Monitor,
	store ListingStore,
	artifacts ArtifactStore,
	publisher OutcomePublisher,
	summaries SummarySink,
	limiter *ratelimit.TokenBucket,
	logger zerolog.Logger,
) *Orchestrator {
	maxSessions := cfg.Automation.MaxConcurrentSessions
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &Orchestrator{
		cfg:       cfg,
		catalog:   catalog,
		factory:   factory,
		monitor:   monitor,
		store:     store,
		artifacts: artifacts,
		publisher: publisher,
		summaries: summaries,
		limiter:   limiter,
		sem:       semaphore.NewWeighted(int64(maxSessions)),
		logger:    logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Search 执行一次职位搜索。先做策略分类，再驱动浏览器会话跑完整流程。
// 会话中途失败时已提取的部分结果仍然返回并打上不完整标记；
// 人工验证中断时错误链中携带ManualInterventionRequired信号
func (o *Orchestrator) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	ctx, span := orchestratorTracer.Start(ctx, "orchestrator.search")
	defer span.End()

	decision := Classify(req)
	o.logger.Info().
		Str("method", string(decision.Method)).
		Str("reason", decision.Reason).
		Strs("applied_filters", decision.AppliedFilters).
		Msg("搜索策略已确定")

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("等待会话槽位失败: %w", err)
	}
	defer o.sem.Release(1)

	sess, err := o.newSession(ctx)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, err
	}
	// 中断挂起的会话保留浏览器等待恢复，其余退出路径一律释放
	defer func() {
		if sess.State() != StateInterrupted {
			sess.Close()
		}
	}()

	listings, runErr := sess.RunSearch(ctx, req)
	o.persistListings(ctx, listings)
	o.tagFavorites(ctx, listings)
	o.recordSummary(ctx, sess)

	result := &SearchResult{Decision: decision, Listings: listings}
	if runErr != nil {
		if sig, ok := AsManualIntervention(runErr); ok {
			tracing.RecordInterruption(span, sig.ResumeToken, string(sess.State()))
			result.Incomplete = true
			result.Message = sig.Message
			return result, runErr
		}
		tracing.RecordError(span, runErr, tracing.ErrorTypeExtraction)
		result.Incomplete = true
		result.Message = runErr.Error()
		return result, runErr
	}
	return result, nil
}

// Apply 对已知职位执行站内引导式申请。职位指向第三方入口时直接拒绝
func (o *Orchestrator) Apply(ctx context.Context, sourceID string, profile *ApplicantProfile) (*ApplicationOutcome, error) {
	ctx, span := orchestratorTracer.Start(ctx, "orchestrator.apply")
	defer span.End()

	if o.store == nil {
		return nil, fmt.Errorf("职位存储未初始化，无法定位申请目标")
	}
	listing, err := o.store.GetListing(ctx, sourceID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, fmt.Errorf("查询职位失败: %w", err)
	}
	if listing == nil {
		return nil, fmt.Errorf("职位不存在: %s", sourceID)
	}
	if !listing.InPageApplyOnly() {
		return nil, fmt.Errorf("职位指向第三方申请入口(%s)，站内引导式流程不适用", listing.ExternalApplicationURL)
	}

	if err := o.resolveArtifacts(ctx, profile); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeStorage)
		return nil, err
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("等待会话槽位失败: %w", err)
	}
	defer o.sem.Release(1)

	sess, err := o.newSession(ctx)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, err
	}
	defer func() {
		if sess.State() != StateInterrupted {
			sess.Close()
		}
	}()

	engine := NewEngine(sess, profile)
	outcome, applyErr := engine.Apply(ctx, listing)
	o.finishApplication(ctx, outcome)
	o.recordSummary(ctx, sess)

	if applyErr != nil {
		if sig, ok := AsManualIntervention(applyErr); ok {
			tracing.RecordInterruption(span, sig.ResumeToken, string(sess.State()))
		} else {
			tracing.RecordError(span, applyErr, tracing.ErrorTypeApplication)
		}
	}
	return outcome, applyErr
}

// Resume 用恢复令牌把挂起的会话从中断点继续。
// 恢复走的是同一个存活的浏览器会话，流程结束后恢复正常的资源释放规则
func (o *Orchestrator) Resume(ctx context.Context, token string) (*ResumeResult, error) {
	ctx, span := orchestratorTracer.Start(ctx, "orchestrator.resume")
	defer span.End()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("等待会话槽位失败: %w", err)
	}
	defer o.sem.Release(1)

	result, err := o.monitor.Resume(ctx, token)
	if result != nil {
		o.persistListings(ctx, result.Listings)
		o.tagFavorites(ctx, result.Listings)
		o.finishApplication(ctx, result.Outcome)
	}
	if err != nil {
		if sig, ok := AsManualIntervention(err); ok {
			// 恢复后再次撞上新的挑战，按新中断处理
			tracing.RecordInterruption(span, sig.ResumeToken, "resume")
			return result, err
		}
		tracing.RecordError(span, err, tracing.ErrorTypeInterruption)
		return result, err
	}
	return result, nil
}

// GetListing 查询单条职位并补充收藏标记
func (o *Orchestrator) GetListing(ctx context.Context, sourceID string) (*Listing, error) {
	if o.store == nil {
		return nil, fmt.Errorf("职位存储未初始化")
	}
	listing, err := o.store.GetListing(ctx, sourceID)
	if err != nil || listing == nil {
		return nil, err
	}
	if favorited, err := o.store.IsFavorited(ctx, sourceID); err == nil {
		listing.Favorited = favorited
	}
	return listing, nil
}

// PendingInterruptions 当前挂起的中断数量，健康检查用
func (o *Orchestrator) PendingInterruptions() int {
	return o.monitor.PendingCount()
}

// Shutdown 丢弃全部挂起中断并释放其浏览器，进程退出前调用
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.monitor.DiscardAll(ctx)
}

func (o *Orchestrator) newSession(ctx context.Context) (*Session, error) {
	page, err := o.factory.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("创建浏览器页面失败: %w", err)
	}
	return NewSession(page, o.catalog, &o.cfg.Site, &o.cfg.Automation, o.monitor, o.limiter, o.logger), nil
}

// resolveArtifacts 把档案里的对象存储key解析为本地文件路径。
// 已有本地路径的字段跳过，对象存储未配置时保持原样
func (o *Orchestrator) resolveArtifacts(ctx context.Context, profile *ApplicantProfile) error {
	if o.artifacts == nil {
		return nil
	}
	if profile.ResumePath == "" && profile.ResumeObjectKey != "" {
		path, err := o.artifacts.FetchArtifact(ctx, profile.ResumeObjectKey)
		if err != nil {
			return fmt.Errorf("下载简历失败: %w", err)
		}
		profile.ResumePath = path
	}
	if profile.CoverLetterPath == "" && profile.CoverLetterObjectKey != "" {
		path, err := o.artifacts.FetchArtifact(ctx, profile.CoverLetterObjectKey)
		if err != nil {
			return fmt.Errorf("下载求职信失败: %w", err)
		}
		profile.CoverLetterPath = path
	}
	return nil
}

// persistListings 尽力而为落库，单条失败记日志继续
func (o *Orchestrator) persistListings(ctx context.Context, listings []Listing) {
	if o.store == nil || len(listings) == 0 {
		return
	}
	saved := 0
	for i := range listings {
		if err := o.store.SaveListing(ctx, &listings[i]); err != nil {
			o.logger.Warn().Err(err).Str("source_id", listings[i].SourceID).Msg("职位落库失败")
			continue
		}
		saved++
	}
	o.logger.Debug().Int("saved", saved).Int("total", len(listings)).Msg("职位批量落库完成")
}

func (o *Orchestrator) tagFavorites(ctx context.Context, listings []Listing) {
	if o.store == nil {
		return
	}
	for i := range listings {
		if favorited, err := o.store.IsFavorited(ctx, listings[i].SourceID); err == nil {
			listings[i].Favorited = favorited
		}
	}
}

// finishApplication 申请结果的落库与事件发布，均为尽力而为
func (o *Orchestrator) finishApplication(ctx context.Context, outcome *ApplicationOutcome) {
	if outcome == nil {
		return
	}
	if o.store != nil {
		if err := o.store.SaveApplicationRecord(ctx, outcome); err != nil {
			o.logger.Warn().Err(err).Str("listing_id", outcome.ListingID).Msg("申请记录落库失败")
		}
	}
	if o.publisher != nil {
		if err := o.publisher.PublishOutcome(ctx, outcome); err != nil {
			o.logger.Warn().Err(err).Str("listing_id", outcome.ListingID).Msg("申请结果事件发布失败")
		}
	}
}

func (o *Orchestrator) recordSummary(ctx context.Context, sess *Session) {
	if o.summaries == nil {
		return
	}
	if err := o.summaries.RecordSessionSummary(ctx, sess.ID(), sess.State(), sess.Counters()); err != nil {
		o.logger.Warn().Err(err).Str("session_id", sess.ID()).Msg("会话摘要写入失败")
	}
}
