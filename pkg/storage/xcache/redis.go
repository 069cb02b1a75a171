package xcache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultKeyPrefix Redis 缓存 key 的默认前缀。
const defaultKeyPrefix = "apexcache:"

// RedisOption Redis 缓存配置选项。
type RedisOption func(*redisCache)

// WithKeyPrefix 设置缓存 key 的前缀。
// 默认值："apexcache:"。
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *redisCache) {
		c.keyPrefix = prefix
	}
}

// redisCache 基于 Redis 的共享缓存。
// 多副本读写同一份数据，TTL 由 Redis 管理。
type redisCache struct {
	client    redis.UniversalClient
	keyPrefix string
	closed    atomic.Bool
}

// NewRedis 创建 Redis 缓存。
// 客户端的生命周期由调用者管理，Close 不会关闭它。
func NewRedis(client redis.UniversalClient, opts ...RedisOption) (Cache, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	c := &redisCache{
		client:    client,
		keyPrefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.closed.Load() {
		return nil, false, ErrClosed
	}
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	val, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr(err)
	}
	return val, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}

	if err := c.client.Set(ctx, c.keyPrefix+key, value, ttl).Err(); err != nil {
		return wrapErr(err)
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := validateKey(key); err != nil {
		return err
	}

	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		return wrapErr(err)
	}
	return nil
}

func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	if err := validateKey(key); err != nil {
		return false, err
	}

	n, err := c.client.Exists(ctx, c.keyPrefix+key).Result()
	if err != nil {
		return false, wrapErr(err)
	}
	return n > 0, nil
}

// Close 关闭缓存。不关闭注入的 Redis 客户端。
func (c *redisCache) Close(context.Context) error {
	c.closed.Store(true)
	return nil
}

// wrapErr 包装 Redis 错误；context 错误保持原样。
func wrapErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}

var _ Cache = (*redisCache)(nil)
