package automation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// challengeMarkers 人工验证挑战的识别关键词。
// 这是全系统唯一的检测规则，所有调用点共用，禁止在别处另写一份
var challengeMarkers = []string{
	"captcha",
	"puzzle",
	"security challenge",
}

// ChallengeDetected 统一的人工验证检测规则：
// 对观察到的页面文本或错误消息做大小写不敏感的关键词匹配
func ChallengeDetected(observed string) bool {
	if observed == "" {
		return false
	}
	lowered := strings.ToLower(observed)
	for _, marker := range challengeMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// ChallengeInError 错误消息版本的同一条规则
func ChallengeInError(err error) bool {
	if err == nil {
		return false
	}
	return ChallengeDetected(err.Error())
}

// TokenMirror 恢复令牌的外部镜像（Redis实现）。为nil时仅内存登记
type TokenMirror interface {
	MirrorResumeToken(ctx context.Context, token, sessionID string, ttl time.Duration) error
	DeleteResumeToken(ctx context.Context, token string) error
}

// pendingEntry 一条挂起的中断：快照加上仍然存活的浏览器会话
type pendingEntry struct {
	state   *InterruptionState
	session *Session
}

// Monitor 中断监视器。持有所有挂起的InterruptionState，
// 保证每个会话同时至多一条，并提供resume的唯一入口
type Monitor struct {
	mu        sync.Mutex
	pending   map[string]*pendingEntry // token -> entry
	bySession map[string]string        // sessionID -> token
	ttl       time.Duration
	mirror    TokenMirror
	logger    zerolog.Logger
}

// NewMonitor 创建中断监视器
func NewMonitor(ttl time.Duration, mirror TokenMirror, logger zerolog.Logger) *Monitor {
	return &Monitor{
		pending:   make(map[string]*pendingEntry),
		bySession: make(map[string]string),
		ttl:       ttl,
		mirror:    mirror,
		logger:    logger.With().Str("component", "interruption_monitor").Logger(),
	}
}

// Suspend 登记一次中断并生成恢复令牌。
// 同一会话已有挂起中断时是协议违规，直接报错而不是悄悄覆盖
func (m *Monitor) Suspend(ctx context.Context, sess *Session, snap *InterruptionState) (*ManualInterventionRequired, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.bySession[sess.ID()]; ok {
		m.logger.Error().
			Str("session_id", sess.ID()).
			Str("existing_token", existing).
			Msg("会话上已有待处理中断，拒绝登记新挑战")
		return nil, NewPendingInterruptionError(sess.ID())
	}

	now := time.Now()
	snap.Token = uuid.NewString()
	snap.SessionID = sess.ID()
	snap.DetectedAt = now
	snap.ExpiresAt = now.Add(m.ttl)

	m.pending[snap.Token] = &pendingEntry{state: snap, session: sess}
	m.bySession[sess.ID()] = snap.Token

	if m.mirror != nil {
		if err := m.mirror.MirrorResumeToken(ctx, snap.Token, sess.ID(), m.ttl); err != nil {
			// 镜像失败不影响内存登记，令牌仍然可用
			m.logger.Warn().Err(err).Str("token", snap.Token).Msg("恢复令牌镜像写入失败")
		}
	}

	m.logger.Info().
		Str("session_id", sess.ID()).
		Str("token", snap.Token).
		Str("phase", string(snap.Phase)).
		Time("expires_at", snap.ExpiresAt).
		Msg("检测到人工验证挑战，会话挂起")

	return &ManualInterventionRequired{
		Message:     "检测到人工验证挑战，请在原浏览器会话中完成验证后调用resume",
		ResumeToken: snap.Token,
	}, nil
}

// consume 取出并移除一条挂起中断。恰好消费一次：
// 未知令牌、过期令牌都按ExpiredInterruption处理，过期会话的浏览器就地关闭
func (m *Monitor) consume(ctx context.Context, token string) (*pendingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.pending[token]
	if !ok {
		return nil, NewExpiredInterruptionError(token)
	}

	delete(m.pending, token)
	delete(m.bySession, entry.state.SessionID)
	if m.mirror != nil {
		if err := m.mirror.DeleteResumeToken(ctx, token); err != nil {
			m.logger.Warn().Err(err).Str("token", token).Msg("恢复令牌镜像删除失败")
		}
	}

	if time.Now().After(entry.state.ExpiresAt) {
		entry.session.Close()
		return nil, NewExpiredInterruptionError(token)
	}

	return entry, nil
}

// Resume 消费令牌并把会话从快照记录的状态重新拉起。
// 重放的是同一个SearchRequest或申请步骤，绝不从头开始
func (m *Monitor) Resume(ctx context.Context, token string) (*ResumeResult, error) {
	entry, err := m.consume(ctx, token)
	if err != nil {
		return nil, err
	}

	st := entry.state
	m.logger.Info().
		Str("session_id", st.SessionID).
		Str("token", token).
		Str("phase", string(st.Phase)).
		Msg("人工验证已清除，恢复会话")

	// 恢复流程一旦终结就释放浏览器，无论成败。
	// 只有恢复途中再次撞上挑战而重新挂起的会话才继续持有浏览器
	defer func() {
		if entry.session.State() != StateInterrupted {
			entry.session.Close()
		}
	}()

	if st.Request != nil {
		listings, err := entry.session.ResumeSearch(ctx, st)
		if err != nil {
			return &ResumeResult{Listings: listings}, err
		}
		return &ResumeResult{Listings: listings}, nil
	}

	engine := NewEngine(entry.session, st.Profile)
	outcome, err := engine.resumeApplication(ctx, st)
	if err != nil {
		return &ResumeResult{Outcome: outcome}, err
	}
	return &ResumeResult{Outcome: outcome}, nil
}

// Discard 丢弃一条挂起中断并释放其浏览器。中断挂起期间会话被取消时走这里
func (m *Monitor) Discard(ctx context.Context, token string) {
	m.mu.Lock()
	entry, ok := m.pending[token]
	if ok {
		delete(m.pending, token)
		delete(m.bySession, entry.state.SessionID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	if m.mirror != nil {
		if err := m.mirror.DeleteResumeToken(ctx, token); err != nil {
			m.logger.Warn().Err(err).Str("token", token).Msg("恢复令牌镜像删除失败")
		}
	}
	entry.session.Close()
	m.logger.Info().Str("token", token).Msg("挂起中断已丢弃，浏览器资源已释放")
}

// DiscardAll 丢弃全部挂起中断，进程退出前调用
func (m *Monitor) DiscardAll(ctx context.Context) {
	m.mu.Lock()
	tokens := make([]string, 0, len(m.pending))
	for token := range m.pending {
		tokens = append(tokens, token)
	}
	m.mu.Unlock()

	for _, token := range tokens {
		m.Discard(ctx, token)
	}
}

// PendingCount 当前挂起的中断数量
func (m *Monitor) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
