package xcap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/apexkit/pkg/distributed/xsched"
	"github.com/omeyang/apexkit/pkg/observability/xalert"
	"github.com/omeyang/apexkit/pkg/queue/xjob"
	"github.com/omeyang/apexkit/pkg/resilience/xquota"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestConfig_Validate(t *testing.T) {
	t.Run("default is valid", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Jobs.Backend = "hybrid"
		assert.ErrorIs(t, cfg.Validate(), ErrConfig)
	})

	t.Run("distributed without redis addr", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Lock.Backend = BackendDistributed
		assert.ErrorIs(t, cfg.Validate(), ErrConfig)
	})

	t.Run("bad quota policy", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Quota.Policy = "panic"
		assert.ErrorIs(t, cfg.Validate(), ErrConfig)
	})

	t.Run("bad alert threshold", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Alerts.Threshold = "loud"
		assert.ErrorIs(t, cfg.Validate(), ErrConfig)
	})

	t.Run("bad drop policy", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Alerts.DropPolicy = "random"
		assert.ErrorIs(t, cfg.Validate(), ErrConfig)
	})
}

func TestBuild_Local(t *testing.T) {
	ctx := context.Background()
	b, err := Build(DefaultConfig())
	require.NoError(t, err)
	defer b.Close(ctx)

	assert.NotNil(t, b.Quota)
	assert.NotNil(t, b.Jobs)
	assert.NotNil(t, b.Lock)
	assert.NotNil(t, b.Sched)
	assert.NotNil(t, b.Alerts)
	assert.NotNil(t, b.Fanout)
	assert.NotNil(t, b.Cache)

	assert.NoError(t, b.Health(ctx))

	snap, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.NotNil(t, snap.Jobs)
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quota.Backend = BackendDistributed // 缺 redis.addr

	_, err := Build(cfg)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestBuild_Distributed(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Redis.Addr = mr.Addr()
	cfg.Quota.Backend = BackendDistributed
	cfg.Jobs.Backend = BackendDistributed
	cfg.Lock.Backend = BackendDistributed
	cfg.Fanout.Backend = BackendDistributed
	cfg.Cache.Backend = BackendDistributed

	b, err := Build(cfg)
	require.NoError(t, err)
	defer b.Close(ctx)

	require.NoError(t, b.Health(ctx))

	// 每项能力走一遍真实后端。
	res, err := b.Quota.Allow(ctx, "tenant-1", xquota.PerWindow(10, time.Minute))
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	id, err := b.Jobs.Enqueue(ctx, &xjob.Job{Type: "probe"})
	require.NoError(t, err)
	rec, err := b.Jobs.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, xjob.StatusPending, rec.Status)

	handle, err := b.Lock.TryAcquire(ctx, "probe", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, handle)
	require.NoError(t, handle.Unlock(ctx))

	require.NoError(t, b.Fanout.Publish(ctx, "probe", []byte("x")))

	require.NoError(t, b.Cache.Set(ctx, "probe", []byte("v"), time.Minute))
	val, ok, err := b.Cache.Get(ctx, "probe")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}

func TestBuild_InjectedRedisClient(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := DefaultConfig()
	cfg.Redis.Addr = mr.Addr()
	cfg.Lock.Backend = BackendDistributed

	b, err := Build(cfg, WithRedisClient(client))
	require.NoError(t, err)
	require.NoError(t, b.Close(ctx))

	// 注入的客户端不随 bundle 关闭。
	assert.NoError(t, client.Ping(ctx).Err())
}

func TestBundle_Health_BackendDown(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Redis.Addr = mr.Addr()
	cfg.Lock.Backend = BackendDistributed

	b, err := Build(cfg)
	require.NoError(t, err)
	defer b.Close(ctx)

	require.NoError(t, b.Health(ctx))
	mr.Close()
	assert.Error(t, b.Health(ctx))
}

// 任务终态失败产生的告警经分发循环送达告警出口。
func TestBundle_JobFailureReachesAlertSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		events []xalert.Event
	)
	sink := xalert.SinkFunc(func(ctx context.Context, ev xalert.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
		return nil
	})

	cfg := DefaultConfig()
	cfg.Jobs.MaxAttempts = 1
	b, err := Build(cfg, WithAlertSink(sink))
	require.NoError(t, err)
	defer b.Close(context.Background())

	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(ctx) }()

	_, err = b.Jobs.Enqueue(ctx, &xjob.Job{Type: "doomed"})
	require.NoError(t, err)
	d, err := b.Jobs.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Fail(ctx, errors.New("boom"), true))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, xalert.SeverityCritical, events[0].Severity)
	assert.Equal(t, "doomed", events[0].Fields["job_type"])
	mu.Unlock()

	cancel()
	assert.NoError(t, <-runDone)
}

// 快照包含命名调度任务的锁持有者，空闲时为空串。
func TestBundle_StatsLockHolders(t *testing.T) {
	ctx := context.Background()
	b, err := Build(DefaultConfig())
	require.NoError(t, err)
	defer b.Close(ctx)

	_, err = b.Sched.AddFunc("@every 10ms", func(context.Context) error {
		return nil
	}, xsched.WithName("nightly-report"))
	require.NoError(t, err)

	b.Sched.Start()
	require.Eventually(t, func() bool {
		return b.Sched.Stats().Job("nightly-report").Runs > 0
	}, 2*time.Second, 10*time.Millisecond)
	<-b.Sched.Stop().Done()

	// 任务结束后锁已释放
	snap, err := b.Stats(ctx)
	require.NoError(t, err)
	require.Contains(t, snap.Locks, "nightly-report")
	assert.Empty(t, snap.Locks["nightly-report"])

	// 模拟另一副本持有锁
	handle, err := b.Lock.TryAcquire(ctx, "nightly-report", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, handle)

	snap, err = b.Stats(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Locks["nightly-report"])
	require.NoError(t, handle.Unlock(ctx))
}

func TestBundle_CloseIdempotent(t *testing.T) {
	ctx := context.Background()
	b, err := Build(DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, b.Close(ctx))
	require.NoError(t, b.Close(ctx))

	assert.ErrorIs(t, b.Health(ctx), ErrClosed)
	_, err = b.Stats(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
