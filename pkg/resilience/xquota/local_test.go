package xquota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLocalSequentialQuota(t *testing.T) {
	l := NewLocal()
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	ctx := context.Background()
	limit := PerWindow(3, time.Minute)

	// limit=3, window=60s：1 秒内的四次调用，前三次放行，第四次拒绝
	for i := range 3 {
		res, err := l.Allow(ctx, "tenant-1", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d should be allowed", i+1)
	}

	res, err := l.Allow(ctx, "tenant-1", limit)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)

	// 其他 key 不受影响
	res, err = l.Allow(ctx, "tenant-2", limit)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

// 拒绝时 Remaining 反映桶中真实剩余的整令牌数，而不是一律报 0。
func TestLocalDeniedRemaining(t *testing.T) {
	l := NewLocal()
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	ctx := context.Background()
	limit := PerWindow(10, time.Hour) // 窗口足够长，测试期间不会补充令牌

	res, err := l.AllowN(ctx, "tenant-d", limit, 7)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)

	res, err = l.AllowN(ctx, "tenant-d", limit, 5)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)

	// 拒绝不消耗令牌，小于剩余量的请求仍可放行。
	res, err = l.AllowN(ctx, "tenant-d", limit, 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLocalConcurrentQuota(t *testing.T) {
	l := NewLocal()
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	ctx := context.Background()
	limit := PerWindow(10, time.Hour) // 窗口足够长，测试期间不会补充令牌

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(ctx, "tenant-c", limit)
			require.NoError(t, err)
			if res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed.Load())
}

func TestLocalRefill(t *testing.T) {
	l := NewLocal()
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	ctx := context.Background()
	limit := PerWindow(10, time.Second) // 每 100ms 补充一个令牌

	res, err := l.AllowN(ctx, "tenant-r", limit, 10)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = l.Allow(ctx, "tenant-r", limit)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	time.Sleep(250 * time.Millisecond)

	res, err = l.Allow(ctx, "tenant-r", limit)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLocalReset(t *testing.T) {
	l := NewLocal()
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	ctx := context.Background()
	limit := PerWindow(1, time.Hour)

	res, err := l.Allow(ctx, "tenant-reset", limit)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = l.Allow(ctx, "tenant-reset", limit)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, "tenant-reset"))

	res, err = l.Allow(ctx, "tenant-reset", limit)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLocalValidation(t *testing.T) {
	l := NewLocal()
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	ctx := context.Background()

	_, err := l.Allow(ctx, "", PerWindow(1, time.Second))
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = l.Allow(ctx, "k", Limit{Rate: 0, Burst: 1, Window: time.Second})
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = l.Allow(ctx, "k", Limit{Rate: 1, Burst: 1, Window: 0})
	assert.ErrorIs(t, err, ErrInvalidLimit)
}
