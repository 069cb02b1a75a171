package xlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMiniredis 创建 miniredis 实例和 Redis 客户端。
func setupMiniredis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestNewRedisNilClient(t *testing.T) {
	_, err := NewRedis(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestRedisTryAcquire(t *testing.T) {
	_, client := setupMiniredis(t)

	l, err := NewRedis(client)
	require.NoError(t, err)
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	ctx := context.Background()

	h1, err := l.TryAcquire(ctx, "daily-report", 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, h1)
	assert.Equal(t, "daily-report", h1.Name())

	// 同一资源第二次获取失败（模拟进程 B）
	h2, err := l.TryAcquire(ctx, "daily-report", 30*time.Second)
	require.NoError(t, err)
	assert.Nil(t, h2)

	require.NoError(t, h1.Unlock(ctx))

	h3, err := l.TryAcquire(ctx, "daily-report", 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, h3)
	require.NoError(t, h3.Unlock(ctx))
}

func TestRedisExpiryReleasesLock(t *testing.T) {
	mr, client := setupMiniredis(t)

	l, err := NewRedis(client)
	require.NoError(t, err)
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	ctx := context.Background()

	h1, err := l.TryAcquire(ctx, "daily-report", 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, h1)

	// TTL 内另一持有者获取失败
	h2, err := l.TryAcquire(ctx, "daily-report", 30*time.Second)
	require.NoError(t, err)
	assert.Nil(t, h2)

	// TTL 到期且未续期
	mr.FastForward(31 * time.Second)

	h3, err := l.TryAcquire(ctx, "daily-report", 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, h3)

	// 过期持有者的释放被拒绝
	assert.ErrorIs(t, h1.Unlock(ctx), ErrNotHeld)

	require.NoError(t, h3.Unlock(ctx))
}

func TestRedisHolder(t *testing.T) {
	mr, client := setupMiniredis(t)

	l, err := NewRedis(client)
	require.NoError(t, err)
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	ctx := context.Background()

	holder, err := l.Holder(ctx, "daily-report")
	require.NoError(t, err)
	assert.Empty(t, holder)

	h, err := l.TryAcquire(ctx, "daily-report", 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, h)

	holder, err = l.Holder(ctx, "daily-report")
	require.NoError(t, err)
	assert.NotEmpty(t, holder)

	// 过期后 key 消失，持有者为空
	mr.FastForward(31 * time.Second)
	holder, err = l.Holder(ctx, "daily-report")
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestRedisFencingTokenMonotonic(t *testing.T) {
	mr, client := setupMiniredis(t)

	l, err := NewRedis(client)
	require.NoError(t, err)
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	ctx := context.Background()

	var last int64
	for range 4 {
		h, err := l.TryAcquire(ctx, "res-fence", time.Second)
		require.NoError(t, err)
		require.NotNil(t, h)
		assert.Greater(t, h.Token(), last)
		last = h.Token()
		mr.FastForward(2 * time.Second) // 模拟过期后的下一位持有者
	}
}

func TestRedisRenew(t *testing.T) {
	mr, client := setupMiniredis(t)

	l, err := NewRedis(client)
	require.NoError(t, err)
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	ctx := context.Background()

	h, err := l.TryAcquire(ctx, "res-renew", 10*time.Second)
	require.NoError(t, err)
	require.NotNil(t, h)

	mr.FastForward(6 * time.Second)
	require.NoError(t, h.Renew(ctx))

	// 续期生效：原 TTL 已过但锁仍被持有
	mr.FastForward(6 * time.Second)
	h2, err := l.TryAcquire(ctx, "res-renew", 10*time.Second)
	require.NoError(t, err)
	assert.Nil(t, h2)

	require.NoError(t, h.Unlock(ctx))
}

func TestRedisBackendUnavailable(t *testing.T) {
	mr, client := setupMiniredis(t)

	l, err := NewRedis(client)
	require.NoError(t, err)
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	mr.Close()

	_, err = l.TryAcquire(context.Background(), "res", time.Second)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, l.Health(context.Background()), ErrBackendUnavailable)
}

func TestRedisKeyPrefix(t *testing.T) {
	mr, client := setupMiniredis(t)

	l, err := NewRedis(client, WithKeyPrefix("myapp:"))
	require.NoError(t, err)
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	ctx := context.Background()

	h, err := l.TryAcquire(ctx, "res", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.True(t, mr.Exists("myapp:res"))
	require.NoError(t, h.Unlock(ctx))
}

func TestRedisClosed(t *testing.T) {
	_, client := setupMiniredis(t)

	l, err := NewRedis(client)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Close(ctx))

	_, err = l.TryAcquire(ctx, "res", time.Minute)
	assert.ErrorIs(t, err, ErrClosed)
}
