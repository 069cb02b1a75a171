package xlock

import "errors"

// 预定义错误。
// 使用 errors.Is 进行错误匹配。
var (
	// ErrEmptyName 资源名为空。
	ErrEmptyName = errors.New("xlock: resource name must not be empty")

	// ErrNameTooLong 资源名超过长度限制（512 字节）。
	ErrNameTooLong = errors.New("xlock: resource name exceeds maximum length of 512 bytes")

	// ErrInvalidTTL TTL 非正数。
	ErrInvalidTTL = errors.New("xlock: ttl must be positive")

	// ErrNotHeld 锁未被当前 handle 持有。
	// 锁已过期、已释放或被其他获取覆盖后，Unlock 和 Renew 返回此错误。
	// 收到此错误后不应再执行受锁保护的外部写操作。
	ErrNotHeld = errors.New("xlock: lock not held by this handle")

	// ErrBackendUnavailable 锁服务不可达。
	// 仅分布式后端会返回；本地后端不产生此错误。
	ErrBackendUnavailable = errors.New("xlock: backend unavailable")

	// ErrClosed Locker 已关闭。
	ErrClosed = errors.New("xlock: locker is closed")

	// ErrNilClient 传入的 Redis 客户端为空。
	ErrNilClient = errors.New("xlock: redis client is nil")
)
