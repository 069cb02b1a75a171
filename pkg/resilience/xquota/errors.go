package xquota

import "errors"

// 预定义错误。
var (
	// ErrEmptyKey 限流 key 为空。
	ErrEmptyKey = errors.New("xquota: key must not be empty")

	// ErrInvalidLimit rate/burst/window 非法。
	ErrInvalidLimit = errors.New("xquota: rate, burst and window must be positive")

	// ErrStoreUnavailable 分布式后端不可达。
	// 与 allowed=false 含义不同：这是后端故障，不是限流判定。
	// 本地后端不产生此错误。
	ErrStoreUnavailable = errors.New("xquota: store unavailable")

	// ErrNilClient 传入的 Redis 客户端为空。
	ErrNilClient = errors.New("xquota: redis client is nil")
)
