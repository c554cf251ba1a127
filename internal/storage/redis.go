package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yonid4/job-postings-scraper-sub002/internal/automation"
	"github.com/yonid4/job-postings-scraper-sub002/internal/config"
	"github.com/yonid4/job-postings-scraper-sub002/internal/constants"
	"github.com/yonid4/job-postings-scraper-sub002/internal/tracing"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

var redisTracer = otel.Tracer("job-agent/storage/redis")

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// 确保Redis实现了令牌镜像与会话摘要两个面
var (
	_ automation.TokenMirror = (*Redis)(nil)
	_ automation.SummarySink = (*Redis)(nil)
)

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 重试设置
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,

		// 连接生命周期
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}

	client := redis.NewClient(opt)

	// Ping to check connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	return r.Client.Close()
}

// MirrorResumeToken 把恢复令牌写入Redis镜像，带TTL。
// 内存登记是权威，镜像只用于可观测与跨实例排查
func (r *Redis) MirrorResumeToken(ctx context.Context, token, sessionID string, ttl time.Duration) error {
	ctx, span := redisTracer.Start(ctx, "Redis.MirrorResumeToken",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	key := fmt.Sprintf(constants.KeyResumeToken, token)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
	)

	if err := r.Client.Set(ctx, key, sessionID, ttl).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("写入恢复令牌镜像失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// DeleteResumeToken 删除恢复令牌镜像。键不存在不算错误
func (r *Redis) DeleteResumeToken(ctx context.Context, token string) error {
	key := fmt.Sprintf(constants.KeyResumeToken, token)
	if err := r.Client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("删除恢复令牌镜像失败: %w", err)
	}
	return nil
}

// GetResumeTokenSession 查询令牌镜像对应的会话ID，排查挂起会话用
func (r *Redis) GetResumeTokenSession(ctx context.Context, token string) (string, error) {
	key := fmt.Sprintf(constants.KeyResumeToken, token)
	sessionID, err := r.Client.Get(ctx, key).Result()
	if err != nil {
		return "", err
	}
	return sessionID, nil
}

// RecordSessionSummary 写入会话运行汇总(HASH)，保留24小时
func (r *Redis) RecordSessionSummary(ctx context.Context, sessionID string, state automation.SessionState, counters automation.Counters) error {
	ctx, span := redisTracer.Start(ctx, "Redis.RecordSessionSummary",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	key := fmt.Sprintf(constants.KeySessionSummary, sessionID)
	fields := map[string]interface{}{
		"state":                  string(state),
		"jobs_found":             counters.JobsFound,
		"applications_submitted": counters.ApplicationsSubmitted,
		"errors":                 counters.Errors,
		"recorded_at":            time.Now().Format(time.RFC3339),
	}

	pipe := r.Client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, constants.SessionSummaryExpire)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("写入会话汇总失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetSessionSummary 读取会话运行汇总
func (r *Redis) GetSessionSummary(ctx context.Context, sessionID string) (map[string]string, error) {
	key := fmt.Sprintf(constants.KeySessionSummary, sessionID)
	fields, err := r.Client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

// MarkListingsSeen 把职位ID加入已见集合，集合整体7天过期
func (r *Redis) MarkListingsSeen(ctx context.Context, sourceIDs []string) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(sourceIDs))
	for i, id := range sourceIDs {
		members[i] = id
	}

	pipe := r.Client.Pipeline()
	pipe.SAdd(ctx, constants.KeySeenListings, members...)
	pipe.Expire(ctx, constants.KeySeenListings, constants.SeenListingExpire)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入已见职位集合失败: %w", err)
	}
	return nil
}

// IsListingSeen 职位是否已在近期的搜索中出现过
func (r *Redis) IsListingSeen(ctx context.Context, sourceID string) (bool, error) {
	return r.Client.SIsMember(ctx, constants.KeySeenListings, sourceID).Result()
}
