package xquota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// Policy 分布式后端不可用时的行为。
type Policy string

const (
	// PolicyOpen 放行并记录日志。可用性优先：限流器故障不应放大为全站故障。
	PolicyOpen Policy = "open"

	// PolicyClosed 拒绝并返回 [ErrStoreUnavailable]。用于安全敏感的配额。
	PolicyClosed Policy = "closed"

	// PolicyLocal 降级到进程内令牌桶。
	PolicyLocal Policy = "local"
)

// Option 分布式限流器配置选项。
type Option func(*redisLimiter)

// WithPolicy 设置失败策略。默认 PolicyOpen。
func WithPolicy(p Policy) Option {
	return func(l *redisLimiter) {
		l.policy = p
	}
}

// WithLogger 设置日志器。默认 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(l *redisLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithBreakerThreshold 设置熔断阈值（连续失败次数）。默认 5。
func WithBreakerThreshold(n uint32) Option {
	return func(l *redisLimiter) {
		if n > 0 {
			l.breakerThreshold = n
		}
	}
}

// redisLimiter 基于 redis_rate 的分布式限流器。
//
// redis_rate 在服务端以原子脚本实现 GCRA 令牌桶，
// 跨进程的并发调用观察到单一一致的计数。
type redisLimiter struct {
	limiter          *redis_rate.Limiter
	client           redis.UniversalClient
	local            Limiter
	policy           Policy
	logger           *slog.Logger
	breakerThreshold uint32
	breaker          *gobreaker.CircuitBreaker[*redis_rate.Result]
}

// NewDistributed 创建 Redis 限流器。
// 客户端的生命周期由调用者管理。
func NewDistributed(client redis.UniversalClient, opts ...Option) (Limiter, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	l := &redisLimiter{
		limiter:          redis_rate.NewLimiter(client),
		client:           client,
		local:            NewLocal(),
		policy:           PolicyOpen,
		logger:           slog.Default(),
		breakerThreshold: 5,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.breaker = gobreaker.NewCircuitBreaker[*redis_rate.Result](gobreaker.Settings{
		Name:    "xquota",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= l.breakerThreshold
		},
	})

	return l, nil
}

func (l *redisLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	return l.AllowN(ctx, key, limit, 1)
}

func (l *redisLimiter) AllowN(ctx context.Context, key string, limit Limit, n int) (*Result, error) {
	if err := validateArgs(key, limit); err != nil {
		return nil, err
	}

	res, err := l.breaker.Execute(func() (*redis_rate.Result, error) {
		return l.limiter.AllowN(ctx, key, redis_rate.Limit{
			Rate:   limit.Rate,
			Burst:  limit.Burst,
			Period: limit.Window,
		}, n)
	})
	if err != nil {
		// context 错误不走失败策略，原样上抛由调用方决定重试。
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return l.fallback(ctx, key, limit, n, err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

// fallback 按配置的策略处理后端故障。
func (l *redisLimiter) fallback(ctx context.Context, key string, limit Limit, n int, cause error) (*Result, error) {
	l.logger.Warn("quota store unavailable, applying failure policy",
		slog.String("policy", string(l.policy)),
		slog.String("key", key),
		slog.String("error", cause.Error()),
	)

	switch l.policy {
	case PolicyClosed:
		return &Result{Allowed: false, Limit: limit.Rate},
			fmt.Errorf("%w: %w", ErrStoreUnavailable, cause)

	case PolicyLocal:
		return l.local.AllowN(ctx, key, limit, n)

	default: // PolicyOpen
		return &Result{Allowed: true, Limit: limit.Rate}, nil
	}
}

func (l *redisLimiter) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := l.limiter.Reset(ctx, key); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return l.local.Reset(ctx, key)
}

func (l *redisLimiter) Close(ctx context.Context) error {
	return l.local.Close(ctx)
}

var _ Limiter = (*redisLimiter)(nil)
