package xquota

import (
	"context"
	"sync"
	"time"
)

// localLimiter 进程内令牌桶限流器。
// 单副本部署的默认选择，也是 PolicyLocal 降级时的兜底。
type localLimiter struct {
	buckets sync.Map // map[string]*tokenBucket
}

// NewLocal 创建进程内限流器。
func NewLocal() Limiter {
	return &localLimiter{}
}

func (l *localLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	return l.AllowN(ctx, key, limit, 1)
}

func (l *localLimiter) AllowN(ctx context.Context, key string, limit Limit, n int) (*Result, error) {
	if err := validateArgs(key, limit); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bucket := l.getOrCreateBucket(key, limit)
	allowed, remaining, retryAfter := bucket.take(limit, n)

	return &Result{
		Allowed:    allowed,
		Limit:      limit.Rate,
		Remaining:  remaining,
		ResetAt:    time.Now().Add(limit.Window),
		RetryAfter: retryAfter,
	}, nil
}

func (l *localLimiter) Reset(_ context.Context, key string) error {
	l.buckets.Delete(key)
	return nil
}

func (l *localLimiter) Close(context.Context) error {
	return nil
}

func (l *localLimiter) getOrCreateBucket(key string, limit Limit) *tokenBucket {
	if val, ok := l.buckets.Load(key); ok {
		return val.(*tokenBucket)
	}

	bucket := &tokenBucket{
		tokens:     float64(limit.Burst),
		lastUpdate: time.Now(),
	}
	actual, _ := l.buckets.LoadOrStore(key, bucket)
	return actual.(*tokenBucket)
}

// tokenBucket 连续补充的令牌桶。
// tokens 与流逝时间单调一致：读改写始终在 mu 内完成。
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastUpdate time.Time
}

// take 尝试取出 n 个令牌。
// 配额参数每次传入，同一 key 的配额变更即时生效。
func (tb *tokenBucket) take(limit Limit, n int) (allowed bool, remaining int, retryAfter time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastUpdate)
	tb.lastUpdate = now

	rate := float64(limit.Rate) / limit.Window.Seconds()
	tb.tokens += rate * elapsed.Seconds()
	if tb.tokens > float64(limit.Burst) {
		tb.tokens = float64(limit.Burst)
	}

	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true, int(tb.tokens), 0
	}

	// 拒绝不消耗令牌，剩余量照实上报。
	deficit := float64(n) - tb.tokens
	wait := time.Duration(deficit / rate * float64(time.Second))
	return false, int(tb.tokens), wait
}

var _ Limiter = (*localLimiter)(nil)
