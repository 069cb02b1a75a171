package xquota

import (
	"context"
	"time"
)

// Limit 描述一条配额：window 内最多 rate 个请求，突发容量 burst。
type Limit struct {
	// Rate 窗口内的请求数上限。
	Rate int

	// Burst 突发容量（令牌桶容量）。
	Burst int

	// Window 时间窗口。
	Window time.Duration
}

// PerWindow 构造 burst=rate 的配额，对应"window 内最多 limit 次"的直观语义。
func PerWindow(rate int, window time.Duration) Limit {
	return Limit{Rate: rate, Burst: rate, Window: window}
}

func (l Limit) validate() error {
	if l.Rate <= 0 || l.Burst <= 0 || l.Window <= 0 {
		return ErrInvalidLimit
	}
	return nil
}

// Result 一次检查并消费的结果。
type Result struct {
	// Allowed 是否放行。
	Allowed bool

	// Limit 本次判定使用的配额上限。
	Limit int

	// Remaining 剩余配额。
	Remaining int

	// ResetAt 配额完全恢复的时间。
	ResetAt time.Time

	// RetryAfter 被限流时建议的重试等待时间。
	RetryAfter time.Duration
}

// Limiter 限流器接口。
//
// 实现必须并发安全；同一 key 的检查与消费是原子的，
// 任何 W 时间窗口内放行次数不超过配额（顺序或并发访问均成立）。
type Limiter interface {
	// Allow 检查并消费 1 个配额。
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)

	// AllowN 检查并消费 n 个配额。
	AllowN(ctx context.Context, key string, limit Limit, n int) (*Result, error)

	// Reset 清除指定 key 的计数，主要用于测试和运维操作。
	Reset(ctx context.Context, key string) error

	// Close 释放限流器自有资源。不关闭注入的外部客户端。
	Close(ctx context.Context) error
}

func validateArgs(key string, limit Limit) error {
	if key == "" {
		return ErrEmptyKey
	}
	return limit.validate()
}
