package xcache

import (
	"context"
	"strings"
	"time"
)

// Cache 带 TTL 的字节值缓存接口。
//
// 实现必须并发安全。Get 未命中不是错误；错误只在参数非法
// 或后端不可达时返回。
type Cache interface {
	// Get 读取 key 对应的值。
	// 未命中（包括已过期）返回 (nil, false, nil)。
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set 写入 key 的值。
	// ttl 为 0 表示不过期；负数返回 [ErrInvalidTTL]。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete 删除 key。key 不存在时为无操作。
	Delete(ctx context.Context, key string) error

	// Exists 判断 key 是否存在且未过期。
	Exists(ctx context.Context, key string) (bool, error)

	// Close 关闭缓存。关闭后其他方法返回 [ErrClosed]。
	// 不关闭注入的外部客户端。
	Close(ctx context.Context) error
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}

func validateTTL(ttl time.Duration) error {
	if ttl < 0 {
		return ErrInvalidTTL
	}
	return nil
}
