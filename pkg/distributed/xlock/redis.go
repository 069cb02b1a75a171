package xlock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// defaultKeyPrefix Redis 锁 key 的默认前缀。
const defaultKeyPrefix = "apexlock:"

// RedisOption Redis Locker 配置选项。
type RedisOption func(*redisLocker)

// WithKeyPrefix 设置锁 key 的前缀。
// 默认值："apexlock:"。
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *redisLocker) {
		l.keyPrefix = prefix
	}
}

// redisLocker 基于 redsync 的分布式锁实现。
//
// 获取是单次原子的 SET NX PX：同一资源名、同一有效期窗口内，
// 整个集群只有一个调用者成功。释放和续期使用 redsync 的原子脚本，
// 只作用于本次获取写入的值。
type redisLocker struct {
	client    redis.UniversalClient
	rs        *redsync.Redsync
	keyPrefix string
	closed    atomic.Bool
}

// NewRedis 创建 Redis Locker。
// 客户端的生命周期由调用者管理，Close 不会关闭它。
func NewRedis(client redis.UniversalClient, opts ...RedisOption) (Locker, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	l := &redisLocker{
		client:    client,
		rs:        redsync.New(goredis.NewPool(client)),
		keyPrefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *redisLocker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (Handle, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateTTL(ttl); err != nil {
		return nil, err
	}

	mutex := l.rs.NewMutex(l.keyPrefix+name,
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
	)

	if err := mutex.TryLockContext(ctx); err != nil {
		err = wrapRedisError(err)
		if errors.Is(err, errLockTaken) {
			return nil, nil // 锁被占用
		}
		return nil, err
	}

	// fencing token：锁获取成功后对资源专属计数器做 INCR。
	// 计数器只增不减，保证同一资源名的 token 严格递增。
	token, err := l.client.Incr(ctx, l.keyPrefix+name+":fence").Result()
	if err != nil {
		// token 拿不到则视为获取失败，回滚锁，避免发放无法校验的持有权。
		_, _ = mutex.UnlockContext(ctx)
		return nil, fmt.Errorf("%w: fence counter: %w", ErrBackendUnavailable, err)
	}

	return &redisHandle{mutex: mutex, name: name, token: token}, nil
}

// Holder 读取锁 key 的当前值，即 redsync 为本次持有写入的随机标识。
// key 不存在（未持有或已过期）时返回空串。
func (l *redisLocker) Holder(ctx context.Context, name string) (string, error) {
	if l.closed.Load() {
		return "", ErrClosed
	}
	if err := validateName(name); err != nil {
		return "", err
	}

	val, err := l.client.Get(ctx, l.keyPrefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", wrapRedisError(err)
	}
	return val, nil
}

// Health 对 Redis 执行 PING。
func (l *redisLocker) Health(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return nil
}

// Close 关闭 Locker。不关闭注入的 Redis 客户端。
func (l *redisLocker) Close(context.Context) error {
	l.closed.Store(true)
	return nil
}

// redisHandle 实现 Handle 接口。
type redisHandle struct {
	mutex *redsync.Mutex
	name  string
	token int64
}

func (h *redisHandle) Unlock(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	if err != nil {
		err = wrapRedisError(err)
		if errors.Is(err, errLockGone) {
			return ErrNotHeld
		}
		return err
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}

// Renew 续期锁，续期时长为获取时的 ttl（redsync 使用创建 mutex 时配置的 Expiry）。
func (h *redisHandle) Renew(ctx context.Context) error {
	ok, err := h.mutex.ExtendContext(ctx)
	if err != nil {
		err = wrapRedisError(err)
		if errors.Is(err, errLockGone) {
			return ErrNotHeld
		}
		return err
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}

func (h *redisHandle) Name() string { return h.name }

func (h *redisHandle) Token() int64 { return h.token }

// 内部错误标记，用于 wrapRedisError 与调用方之间的分类。
var (
	errLockTaken = errors.New("xlock: taken")
	errLockGone  = errors.New("xlock: gone")
)

// wrapRedisError 将 redsync 错误归类，保留原始错误链。
func wrapRedisError(err error) error {
	if err == nil {
		return nil
	}

	// context 错误保持原样，调用方据此区分取消/超时。
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	// ErrTaken 是结构体类型，需要 errors.As。
	var taken *redsync.ErrTaken
	if errors.As(err, &taken) {
		return fmt.Errorf("%w: %w", errLockTaken, err)
	}
	if errors.Is(err, redsync.ErrLockAlreadyExpired) {
		return fmt.Errorf("%w: %w", errLockGone, err)
	}
	if errors.Is(err, redsync.ErrFailed) || errors.Is(err, redsync.ErrExtendFailed) {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}

var (
	_ Locker = (*redisLocker)(nil)
	_ Handle = (*redisHandle)(nil)
)
