package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/yonid4/job-postings-scraper-sub002/internal/tracing"
)

var engineTracer = otel.Tracer("job-agent/automation/engine")

// Engine 站内引导式申请引擎。驱动多步申请表单：
// 逐步填写档案字段、上传材料、回答筛选问题，直到提交确认或策略放弃。
// 引擎复用会话的节奏控制、重试规则和挑战检测，自身不做浏览器操作之外的事
type Engine struct {
	sess    *Session
	profile *ApplicantProfile
	logger  zerolog.Logger

	// 跨步骤累计的未回答问题
	unanswered []string
}

// NewEngine 在既有会话上创建申请引擎。档案引擎只读
func NewEngine(sess *Session, profile *ApplicantProfile) *Engine {
	return &Engine{
		sess:    sess,
		profile: profile,
		logger:  sess.logger.With().Str("component", "apply_engine").Logger(),
	}
}

// Apply 对单条职位执行站内引导式申请。
// 策略放弃(aborted_*)是正常结果不是错误；流程失败时返回的结果带上已完成的步数
func (e *Engine) Apply(ctx context.Context, listing *Listing) (*ApplicationOutcome, error) {
	ctx, span := engineTracer.Start(ctx, "engine.apply")
	defer span.End()

	if !listing.InPageApplyOnly() {
		err := fmt.Errorf("职位指向第三方申请入口，站内引导式流程不适用")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return e.newOutcome(listing, ApplicationFailed, 0, err.Error()), err
	}
	if e.profile.MaxApplicationsPerSession > 0 &&
		e.sess.counters.ApplicationsSubmitted >= e.profile.MaxApplicationsPerSession {
		return nil, fmt.Errorf("已达本会话申请上限(%d)，拒绝新申请", e.profile.MaxApplicationsPerSession)
	}

	snap := func() *InterruptionState {
		return &InterruptionState{Listing: listing, Profile: e.profile, Step: 0}
	}
	if e.sess.State() == StateUnauthenticated {
		if err := e.sess.login(ctx, snap); err != nil {
			return nil, err
		}
	}

	if err := e.openApplicationForm(ctx, listing); err != nil {
		if _, suspended := AsManualIntervention(err); suspended {
			return nil, err
		}
		tracing.RecordError(span, err, tracing.ErrorTypeApplication)
		return e.newOutcome(listing, ApplicationFailed, 0, err.Error()), err
	}

	return e.runSteps(ctx, listing, 1)
}

// resumeApplication 从中断快照继续申请。被捕获的步骤整步重放
func (e *Engine) resumeApplication(ctx context.Context, st *InterruptionState) (*ApplicationOutcome, error) {
	if e.sess.State() != StateInterrupted {
		return nil, NewExpiredInterruptionError(st.Token)
	}
	listing := st.Listing

	if st.Phase == StateAuthenticating {
		// 人工清障后登录通常已经完成，先确认标记
		if err := e.sess.page.WaitVisible(ctx, e.sess.catalog.MustGet(SelLoginSuccess), e.sess.cfg.ElementWait()); err != nil {
			e.sess.setState(StateFailed)
			return nil, NewAuthError(e.sess.id, "恢复后仍未确认登录")
		}
		e.sess.setState(StateAuthenticated)
		if err := e.openApplicationForm(ctx, listing); err != nil {
			return nil, err
		}
		return e.runSteps(ctx, listing, 1)
	}

	e.sess.setState(StateAuthenticated)
	start := st.Step
	if start < 1 {
		if err := e.openApplicationForm(ctx, listing); err != nil {
			return nil, err
		}
		start = 1
	}
	return e.runSteps(ctx, listing, start)
}

// openApplicationForm 打开职位详情并点击申请按钮进入表单
func (e *Engine) openApplicationForm(ctx context.Context, listing *Listing) error {
	if err := e.sess.pace(ctx); err != nil {
		return err
	}
	if err := e.sess.page.Navigate(ctx, listing.URL); err != nil {
		if ChallengeInError(err) {
			return e.suspendAt(ctx, listing, 0)
		}
		return fmt.Errorf("打开职位详情页失败: %w", err)
	}
	if e.sess.scanForChallenge(ctx) {
		return e.suspendAt(ctx, listing, 0)
	}

	applySel := e.sess.catalog.MustGet(SelApplyButton)
	err := e.sess.withRetry(ctx, "open_apply_form", func() error {
		if err := e.sess.pace(ctx); err != nil {
			return err
		}
		if err := e.sess.page.WaitVisible(ctx, applySel, e.sess.cfg.ElementWait()); err != nil {
			return err
		}
		return e.sess.page.Click(ctx, applySel)
	})
	if err != nil {
		if ChallengeInError(err) {
			return e.suspendAt(ctx, listing, 0)
		}
		return fmt.Errorf("进入申请表单失败: %w", err)
	}
	return nil
}

// runSteps 申请步骤主循环。每步先探测挑战，再填充字段，最后推进或提交。
// 步数超过上限按复杂申请处理
func (e *Engine) runSteps(ctx context.Context, listing *Listing, startStep int) (*ApplicationOutcome, error) {
	ctx, span := engineTracer.Start(ctx, "engine.run_steps")
	defer span.End()

	maxSteps := e.sess.cfg.MaxApplicationSteps
	for step := startStep; step <= maxSteps; step++ {
		// 取消只在步骤间生效
		if err := ctx.Err(); err != nil {
			return e.newOutcome(listing, ApplicationFailed, step-1, "会话已取消"),
				fmt.Errorf("%w: %v", ErrSessionCancelled, err)
		}

		if e.sess.scanForChallenge(ctx) {
			return nil, e.suspendAt(ctx, listing, step)
		}

		unresolved, err := e.fillStep(ctx, step)
		if err != nil {
			if ChallengeInError(err) {
				return nil, e.suspendAt(ctx, listing, step)
			}
			tracing.RecordError(span, err, tracing.ErrorTypeApplication)
			return e.newOutcome(listing, ApplicationFailed, step-1, err.Error()), err
		}
		if unresolved != "" {
			if e.profile.SkipComplexApplications {
				e.logger.Info().
					Str("listing_id", listing.SourceID).
					Str("field", unresolved).
					Msg("必填字段无法解析，按策略放弃本次申请")
				return e.newOutcome(listing, ApplicationAbortedComplex, step-1,
					"必填字段无法解析: "+unresolved), nil
			}
			resolveErr := NewUnresolvedFieldError(e.sess.id, unresolved)
			tracing.RecordError(span, resolveErr, tracing.ErrorTypeApplication)
			return e.newOutcome(listing, ApplicationFailed, step-1, resolveErr.Error()), resolveErr
		}

		// 有提交按钮说明到了最后一步
		submitSel := e.sess.catalog.MustGet(SelFormSubmit)
		if hasSubmit, _ := e.sess.page.Exists(ctx, submitSel); hasSubmit {
			if len(e.unanswered) > 0 && e.profile.RequireManualReview {
				e.logger.Info().
					Str("listing_id", listing.SourceID).
					Strs("unanswered", e.unanswered).
					Msg("存在未回答的问题，按策略留待人工复核")
				return e.newOutcome(listing, ApplicationAbortedManualReview, step,
					"存在未回答的问题，留待人工复核"), nil
			}
			return e.submit(ctx, listing, step)
		}

		nextSel := e.sess.catalog.MustGet(SelFormNext)
		hasNext, _ := e.sess.page.Exists(ctx, nextSel)
		if !hasNext {
			err := NewElementNotFoundError(e.sess.id, "apply", "表单既无下一步也无提交控件")
			tracing.RecordError(span, err, tracing.ErrorTypeApplication)
			return e.newOutcome(listing, ApplicationFailed, step-1, err.Error()), err
		}
		err = e.sess.withRetry(ctx, "form_next", func() error {
			if err := e.sess.pace(ctx); err != nil {
				return err
			}
			return e.sess.page.Click(ctx, nextSel)
		})
		if err != nil {
			if ChallengeInError(err) {
				return nil, e.suspendAt(ctx, listing, step+1)
			}
			return e.newOutcome(listing, ApplicationFailed, step, err.Error()), err
		}
	}

	if e.profile.SkipComplexApplications {
		return e.newOutcome(listing, ApplicationAbortedComplex, maxSteps,
			fmt.Sprintf("表单超过%d步仍未到达提交，按策略放弃", maxSteps)), nil
	}
	err := fmt.Errorf("表单超过%d步仍未到达提交", maxSteps)
	return e.newOutcome(listing, ApplicationFailed, maxSteps, err.Error()), err
}

// submit 点击提交并等待确认标记。确认等待超时先探测挑战再裁定失败。
// 提交点击绝不重放，半提交的表单重放有重复申请风险
func (e *Engine) submit(ctx context.Context, listing *Listing, step int) (*ApplicationOutcome, error) {
	if err := e.sess.pace(ctx); err != nil {
		return nil, err
	}
	if err := e.sess.page.Click(ctx, e.sess.catalog.MustGet(SelFormSubmit)); err != nil {
		if ChallengeInError(err) {
			return nil, e.suspendAt(ctx, listing, step)
		}
		return e.newOutcome(listing, ApplicationFailed, step-1, err.Error()), err
	}

	confirmSel := e.sess.catalog.MustGet(SelSubmitConfirmed)
	if err := e.sess.page.WaitVisible(ctx, confirmSel, e.sess.cfg.ElementWait()); err != nil {
		if e.sess.scanForChallenge(ctx) || ChallengeInError(err) {
			return nil, e.suspendAt(ctx, listing, step)
		}
		failErr := fmt.Errorf("提交后未出现确认标记: %w", err)
		return e.newOutcome(listing, ApplicationFailed, step-1, failErr.Error()), failErr
	}

	e.sess.counters.ApplicationsSubmitted++
	e.logger.Info().
		Str("listing_id", listing.SourceID).
		Int("steps", step).
		Int("session_total", e.sess.counters.ApplicationsSubmitted).
		Msg("申请提交成功")
	return e.newOutcome(listing, ApplicationSubmitted, step, ""), nil
}

// fillStep 填充当前步骤的所有表单元素。
// 返回首个无法解析的必填字段名，为空表示本步全部解析成功
func (e *Engine) fillStep(ctx context.Context, step int) (string, error) {
	page := e.sess.page
	catalog := e.sess.catalog

	// 直接映射档案的联系信息输入框
	textSel := catalog.MustGet(SelFormTextInput)
	textCount, err := page.Count(ctx, textSel)
	if err != nil {
		return "", fmt.Errorf("统计文本输入框失败: %w", err)
	}
	for i := 1; i <= textCount; i++ {
		input := textSel.Nth(i)
		field := e.fieldIdentity(ctx, input)
		value := e.contactValue(field)
		if value == "" {
			continue
		}
		if err := e.sess.pace(ctx); err != nil {
			return "", err
		}
		if err := page.Fill(ctx, input, value); err != nil {
			return "", fmt.Errorf("填写字段 %s 失败: %w", field, err)
		}
		e.logger.Debug().Int("step", step).
			Str("field", field).
			Str("value", tracing.SafeAttributeValue(field, value, tracing.DefaultMaxLength)).
			Msg("联系信息字段已填写")
	}

	// 文件上传：简历/求职信按控件名路由到对应的本地材料
	fileSel := catalog.MustGet(SelFormFileInput)
	fileCount, err := page.Count(ctx, fileSel)
	if err != nil {
		return "", fmt.Errorf("统计文件控件失败: %w", err)
	}
	for i := 1; i <= fileCount; i++ {
		input := fileSel.Nth(i)
		field := e.fieldIdentity(ctx, input)
		path := e.artifactPath(field)
		_, required, _ := page.Attr(ctx, input, "required")
		if path == "" {
			if required {
				return "上传控件 " + field, nil
			}
			e.logger.Debug().Int("step", step).Str("field", field).Msg("可选上传控件无对应材料，跳过")
			continue
		}
		if err := e.sess.pace(ctx); err != nil {
			return "", err
		}
		if err := page.Upload(ctx, input, path); err != nil {
			return "", fmt.Errorf("上传 %s 失败: %w", field, err)
		}
	}

	// 下拉框按控件名走问题类别匹配
	selectSel := catalog.MustGet(SelFormSelect)
	selectCount, err := page.Count(ctx, selectSel)
	if err != nil {
		return "", fmt.Errorf("统计下拉框失败: %w", err)
	}
	for i := 1; i <= selectCount; i++ {
		input := selectSel.Nth(i)
		field := e.fieldIdentity(ctx, input)
		answer, ok := e.profile.AnswerForQuestion(field)
		if !ok {
			_, required, _ := page.Attr(ctx, input, "required")
			if required {
				e.noteUnanswered(field)
			}
			continue
		}
		if err := e.sess.pace(ctx); err != nil {
			return "", err
		}
		if err := page.SelectOption(ctx, input, answer); err != nil {
			return "", fmt.Errorf("选择 %s 失败: %w", field, err)
		}
	}

	// 自由问题：标签文本匹配规范类别，命中档案默认答案才作答
	if err := e.answerQuestions(ctx, step); err != nil {
		return "", err
	}
	return "", nil
}

// answerQuestions 处理带标签的筛选问题。
// 必答且无答案的问题记入未回答清单，是否放弃由提交前的策略决定
func (e *Engine) answerQuestions(ctx context.Context, step int) error {
	page := e.sess.page
	catalog := e.sess.catalog

	labelSel := catalog.MustGet(SelFormQuestionLabel)
	count, err := page.Count(ctx, labelSel)
	if err != nil {
		return fmt.Errorf("统计问题标签失败: %w", err)
	}
	for i := 1; i <= count; i++ {
		label := labelSel.Nth(i)
		question, err := page.Text(ctx, label)
		if err != nil {
			continue
		}
		question = strings.TrimSpace(question)
		if question == "" {
			continue
		}

		answer, ok := e.profile.AnswerForQuestion(question)
		if !ok {
			requiredSel := label.Within(catalog.MustGet(SelFormRequiredMark))
			if required, _ := page.Exists(ctx, requiredSel); required {
				e.noteUnanswered(question)
				e.logger.Debug().Int("step", step).
					Str("question", tracing.TruncateString(question, tracing.MaxQuestionLength)).
					Msg("必答问题无可用答案")
			}
			continue
		}
		if err := e.sess.pace(ctx); err != nil {
			return err
		}
		if err := page.Fill(ctx, catalog.MustGet(SelFormQuestionInput).Nth(i), answer); err != nil {
			return fmt.Errorf("回答问题失败: %w", err)
		}
	}
	return nil
}

// suspendAt 以申请上下文挂起会话。step为0表示恢复后需要重新打开表单
func (e *Engine) suspendAt(ctx context.Context, listing *Listing, step int) error {
	return e.sess.suspend(ctx, &InterruptionState{
		Phase:   e.sess.State(),
		Listing: listing,
		Profile: e.profile,
		Step:    step,
	})
}

// fieldIdentity 控件的身份串，优先name属性，退回id
func (e *Engine) fieldIdentity(ctx context.Context, input Selector) string {
	if name, ok, _ := e.sess.page.Attr(ctx, input, "name"); ok && name != "" {
		return name
	}
	if id, ok, _ := e.sess.page.Attr(ctx, input, "id"); ok && id != "" {
		return id
	}
	return input.Name
}

// contactValue 控件身份到档案联系信息的直接映射，匹配不上返回空
func (e *Engine) contactValue(field string) string {
	f := strings.ToLower(field)
	switch {
	case strings.Contains(f, "email"):
		return e.profile.Email
	case strings.Contains(f, "phone") || strings.Contains(f, "mobile"):
		return e.profile.Phone
	case strings.Contains(f, "name"):
		return e.profile.FullName
	case strings.Contains(f, "location") || strings.Contains(f, "city"):
		return e.profile.Location
	case strings.Contains(f, "cover"):
		return e.profile.CoverLetterText
	}
	return ""
}

// artifactPath 上传控件到本地材料路径的路由
func (e *Engine) artifactPath(field string) string {
	f := strings.ToLower(field)
	switch {
	case strings.Contains(f, "cover"):
		return e.profile.CoverLetterPath
	case strings.Contains(f, "resume") || strings.Contains(f, "cv"):
		return e.profile.ResumePath
	}
	return ""
}

func (e *Engine) noteUnanswered(question string) {
	for _, q := range e.unanswered {
		if q == question {
			return
		}
	}
	e.unanswered = append(e.unanswered, question)
}

func (e *Engine) newOutcome(listing *Listing, status ApplicationStatus, steps int, message string) *ApplicationOutcome {
	if steps < 0 {
		steps = 0
	}
	return &ApplicationOutcome{
		ListingID:           listing.SourceID,
		ListingURL:          listing.URL,
		Status:              status,
		StepsCompleted:      steps,
		UnansweredQuestions: append([]string(nil), e.unanswered...),
		Message:             message,
		CompletedAt:         time.Now(),
	}
}
