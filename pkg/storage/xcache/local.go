package xcache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// 本地缓存的默认容量参数。
const (
	defaultNumCounters = 1e6
	defaultMaxCost     = 64 * 1024 * 1024 // 64MB
	defaultBufferItems = 64
)

// LocalOption 本地缓存配置选项。
type LocalOption func(*localOptions)

type localOptions struct {
	numCounters int64
	maxCost     int64
}

// WithNumCounters 设置频率统计的计数器数量。
// 建议为预期 key 数量的 10 倍。默认 1e6。
func WithNumCounters(n int64) LocalOption {
	return func(o *localOptions) {
		if n > 0 {
			o.numCounters = n
		}
	}
}

// WithMaxCost 设置缓存最大容量（字节）。默认 64MB。
func WithMaxCost(cost int64) LocalOption {
	return func(o *localOptions) {
		if cost > 0 {
			o.maxCost = cost
		}
	}
}

// localCache 基于 ristretto 的进程内缓存。
//
// ristretto 的写入是异步的，这里每次 Set 后调用 Wait 换取
// 读己之写语义，与 Redis 后端的行为保持一致。
type localCache struct {
	cache  *ristretto.Cache[string, []byte]
	closed atomic.Bool
}

// NewLocal 创建进程内缓存。
func NewLocal(opts ...LocalOption) (Cache, error) {
	o := &localOptions{
		numCounters: defaultNumCounters,
		maxCost:     defaultMaxCost,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: o.numCounters,
		MaxCost:     o.maxCost,
		BufferItems: defaultBufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("xcache: create local cache: %w", err)
	}

	return &localCache{cache: cache}, nil
}

func (c *localCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if c.closed.Load() {
		return nil, false, ErrClosed
	}
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	val, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return val, true, nil
}

func (c *localCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}

	cost := int64(len(value))
	if cost == 0 {
		cost = 1
	}
	c.cache.SetWithTTL(key, value, cost, ttl)
	c.cache.Wait()
	return nil
}

func (c *localCache) Delete(_ context.Context, key string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := validateKey(key); err != nil {
		return err
	}
	c.cache.Del(key)
	return nil
}

func (c *localCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

func (c *localCache) Close(context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cache.Close()
	return nil
}

var _ Cache = (*localCache)(nil)
