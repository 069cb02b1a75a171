package xcache

import "errors"

// 预定义错误。
// 使用 errors.Is 进行错误匹配。
var (
	// ErrEmptyKey key 为空。
	ErrEmptyKey = errors.New("xcache: key must not be empty")

	// ErrInvalidTTL ttl 为负数。0 表示不过期。
	ErrInvalidTTL = errors.New("xcache: ttl must not be negative")

	// ErrBackendUnavailable 缓存后端不可达。
	// 仅 Redis 后端会返回；本地后端不产生此错误。
	ErrBackendUnavailable = errors.New("xcache: backend unavailable")

	// ErrClosed 缓存已关闭。
	ErrClosed = errors.New("xcache: cache is closed")

	// ErrNilClient 传入的 Redis 客户端为空。
	ErrNilClient = errors.New("xcache: redis client is nil")
)
