package xcap

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/apexkit/pkg/distributed/xlock"
	"github.com/omeyang/apexkit/pkg/distributed/xsched"
	"github.com/omeyang/apexkit/pkg/lifecycle/xrun"
	"github.com/omeyang/apexkit/pkg/mq/xfanout"
	"github.com/omeyang/apexkit/pkg/observability/xalert"
	"github.com/omeyang/apexkit/pkg/queue/xjob"
	"github.com/omeyang/apexkit/pkg/resilience/xquota"
	"github.com/omeyang/apexkit/pkg/storage/xcache"
)

// BuildOption Build 的配置选项。
type BuildOption func(*buildOptions)

type buildOptions struct {
	logger    *slog.Logger
	redis     redis.UniversalClient
	alertSink xalert.Sink
}

// WithLogger 设置日志器，透传给所有能力。默认 slog.Default()。
func WithLogger(logger *slog.Logger) BuildOption {
	return func(o *buildOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRedisClient 注入现成的 redis 客户端，代替按配置新建。
// 注入的客户端由调用方管理，Close 不会关闭它。
func WithRedisClient(client redis.UniversalClient) BuildOption {
	return func(o *buildOptions) {
		o.redis = client
	}
}

// WithAlertSink 注入自定义告警出口，优先于配置中的 webhook。
func WithAlertSink(sink xalert.Sink) BuildOption {
	return func(o *buildOptions) {
		o.alertSink = sink
	}
}

// Bundle 一套装配完成的基础设施能力。
// 字段在 Build 后只读；Close 后所有能力不可再用。
type Bundle struct {
	Quota  xquota.Limiter
	Jobs   xjob.Queue
	Lock   xlock.Locker
	Sched  *xsched.Scheduler
	Alerts *xalert.Dispatcher
	Fanout xfanout.PubSub
	Cache  xcache.Cache

	cfg      Config
	redis    redis.UniversalClient
	ownRedis bool
	logger   *slog.Logger
	closed   atomic.Bool
}

// Build 按配置装配能力束。配置非法返回 [ErrConfig] 包装的错误。
func Build(cfg Config, opts ...BuildOption) (*Bundle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &buildOptions{logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	b := &Bundle{cfg: cfg, logger: o.logger, redis: o.redis}

	if cfg.anyDistributed() && b.redis == nil {
		b.redis = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Username:     cfg.Redis.Username,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		b.ownRedis = true
	}

	if err := b.build(o); err != nil {
		b.release(context.Background())
		return nil, err
	}
	return b, nil
}

func (b *Bundle) build(o *buildOptions) error {
	cfg := b.cfg

	// 告警最先装配，任务队列的终态失败要挂接到它。
	threshold, _ := xalert.ParseSeverity(cfg.Alerts.Threshold)
	sink := o.alertSink
	if sink == nil {
		if cfg.Alerts.WebhookURL != "" {
			ws, err := xalert.NewWebhookSink(cfg.Alerts.WebhookURL)
			if err != nil {
				return fmt.Errorf("%w: alerts.webhook_url: %v", ErrConfig, err)
			}
			sink = ws
		} else {
			logger := b.logger
			sink = xalert.SinkFunc(func(ctx context.Context, ev xalert.Event) error {
				logger.Warn("alert", slog.String("severity", ev.Severity.String()),
					slog.String("message", ev.Message))
				return nil
			})
		}
	}
	alerts, err := xalert.New(sink,
		xalert.WithThreshold(threshold),
		xalert.WithBufferSize(cfg.Alerts.BufferSize),
		xalert.WithDropPolicy(xalert.DropPolicy(cfg.Alerts.DropPolicy)),
		xalert.WithLogger(b.logger),
	)
	if err != nil {
		return err
	}
	b.Alerts = alerts

	if cfg.Quota.Backend == BackendDistributed {
		limiter, err := xquota.NewDistributed(b.redis,
			xquota.WithPolicy(xquota.Policy(cfg.Quota.Policy)),
			xquota.WithLogger(b.logger),
		)
		if err != nil {
			return err
		}
		b.Quota = limiter
	} else {
		b.Quota = xquota.NewLocal()
	}

	if cfg.Jobs.Backend == BackendDistributed {
		queue, err := xjob.NewRedis(b.redis, cfg.Jobs.Queue,
			xjob.WithMaxAttempts(cfg.Jobs.MaxAttempts),
			xjob.WithVisibilityTimeout(cfg.Jobs.VisibilityTimeout),
			xjob.WithStatusRetention(cfg.Jobs.StatusRetention),
			xjob.WithAlerter(alerts),
			xjob.WithLogger(b.logger),
		)
		if err != nil {
			return err
		}
		b.Jobs = queue
	} else {
		b.Jobs = xjob.NewLocal(
			xjob.WithCapacity(cfg.Jobs.Capacity),
			xjob.WithMaxAttempts(cfg.Jobs.MaxAttempts),
			xjob.WithStatusRetention(cfg.Jobs.StatusRetention),
			xjob.WithAlerter(alerts),
			xjob.WithLogger(b.logger),
		)
	}

	if cfg.Lock.Backend == BackendDistributed {
		locker, err := xlock.NewRedis(b.redis)
		if err != nil {
			return err
		}
		b.Lock = locker
	} else {
		b.Lock = xlock.NewLocal()
	}

	schedOpts := []xsched.Option{
		xsched.WithDefaultLockTTL(cfg.Sched.DefaultLockTTL),
		xsched.WithLogger(b.logger),
	}
	if cfg.Sched.Seconds {
		schedOpts = append(schedOpts, xsched.WithSeconds())
	}
	b.Sched = xsched.New(b.Lock, schedOpts...)

	if cfg.Fanout.Backend == BackendDistributed {
		ps, err := xfanout.NewRedis(b.redis,
			xfanout.WithBufferSize(cfg.Fanout.BufferSize),
			xfanout.WithLogger(b.logger),
		)
		if err != nil {
			return err
		}
		b.Fanout = ps
	} else {
		b.Fanout = xfanout.NewLocal(
			xfanout.WithBufferSize(cfg.Fanout.BufferSize),
			xfanout.WithLogger(b.logger),
		)
	}

	if cfg.Cache.Backend == BackendDistributed {
		cache, err := xcache.NewRedis(b.redis)
		if err != nil {
			return err
		}
		b.Cache = cache
	} else {
		cache, err := xcache.NewLocal(xcache.WithMaxCost(cfg.Cache.MaxCost))
		if err != nil {
			return err
		}
		b.Cache = cache
	}

	return nil
}

// Run 运行需要后台循环的能力（告警分发），直到 ctx 取消。
// 调度器的启停独立，由调用方按需 Sched.Start()。
func (b *Bundle) Run(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	g, _ := xrun.NewGroup(ctx, xrun.WithName("xcap"), xrun.WithLogger(b.logger))
	g.GoWithName("alert-dispatcher", b.Alerts.Run)
	return g.Wait()
}

// Health 探测后端可达性。全本地配置恒返回 nil。
func (b *Bundle) Health(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if b.redis == nil {
		return nil
	}
	if err := b.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("xcap: redis ping: %w", err)
	}
	return nil
}

// Snapshot 运行状态快照。
// Locks 为命名调度任务的锁持有者标识，空串表示当前无持有者。
type Snapshot struct {
	Jobs   *xjob.Stats       `json:"jobs"`
	Sched  []xsched.JobStats `json:"sched"`
	Alerts xalert.Stats      `json:"alerts"`
	Locks  map[string]string `json:"locks,omitempty"`
}

// Stats 返回运行状态快照，用于运维观测。
func (b *Bundle) Stats(ctx context.Context) (*Snapshot, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	jobs, err := b.Jobs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	sched := b.Sched.Stats().Snapshot()

	// 调度任务名同时是锁资源名，逐一询问持有者。未命名任务不抢锁，跳过。
	var locks map[string]string
	for _, js := range sched {
		if js.Name == "" {
			continue
		}
		holder, err := b.Lock.Holder(ctx, js.Name)
		if err != nil {
			return nil, err
		}
		if locks == nil {
			locks = make(map[string]string, len(sched))
		}
		locks[js.Name] = holder
	}

	return &Snapshot{
		Jobs:   jobs,
		Sched:  sched,
		Alerts: b.Alerts.Stats(),
		Locks:  locks,
	}, nil
}

// Close 按依赖顺序释放全部能力。幂等。
func (b *Bundle) Close(ctx context.Context) error {
	if b.closed.Swap(true) {
		return nil
	}
	b.release(ctx)
	return nil
}

func (b *Bundle) release(ctx context.Context) {
	if b.Sched != nil {
		<-b.Sched.Stop().Done()
	}
	if b.Jobs != nil {
		if err := b.Jobs.Close(ctx); err != nil {
			b.logger.Warn("failed to close job queue", slog.String("error", err.Error()))
		}
	}
	if b.Fanout != nil {
		if err := b.Fanout.Close(ctx); err != nil {
			b.logger.Warn("failed to close fanout", slog.String("error", err.Error()))
		}
	}
	if b.Cache != nil {
		if err := b.Cache.Close(ctx); err != nil {
			b.logger.Warn("failed to close cache", slog.String("error", err.Error()))
		}
	}
	if b.Quota != nil {
		if err := b.Quota.Close(ctx); err != nil {
			b.logger.Warn("failed to close quota limiter", slog.String("error", err.Error()))
		}
	}
	if b.Lock != nil {
		if err := b.Lock.Close(ctx); err != nil {
			b.logger.Warn("failed to close locker", slog.String("error", err.Error()))
		}
	}
	if b.ownRedis && b.redis != nil {
		if err := b.redis.Close(); err != nil {
			b.logger.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}
}
