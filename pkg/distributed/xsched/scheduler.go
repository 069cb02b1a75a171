package xsched

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/apexkit/pkg/distributed/xlock"
)

// JobID 任务唯一标识，复用 cron.EntryID。
type JobID = cron.EntryID

// Job 定时任务接口。
type Job interface {
	// Run 执行任务。任务应响应 ctx.Done()。
	Run(ctx context.Context) error
}

// JobFunc 函数适配器。
type JobFunc func(ctx context.Context) error

// Run 实现 [Job] 接口。
func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

// Option 调度器配置选项。
type Option func(*options)

type options struct {
	location       *time.Location
	seconds        bool
	defaultLockTTL time.Duration
	logger         *slog.Logger
}

func defaultOptions() *options {
	return &options{
		location:       time.Local,
		defaultLockTTL: time.Minute,
		logger:         slog.Default(),
	}
}

// WithLocation 设置时区。默认本地时区。
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithSeconds 启用秒级精度的 cron 表达式。
func WithSeconds() Option {
	return func(o *options) {
		o.seconds = true
	}
}

// WithDefaultLockTTL 设置默认锁 TTL，可被任务级 WithLockTTL 覆盖。默认 1m。
func WithDefaultLockTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.defaultLockTTL = d
		}
	}
}

// WithLogger 设置日志器。默认 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// JobOption 任务级配置选项。
type JobOption func(*jobOptions)

type jobOptions struct {
	name    string
	timeout time.Duration
	lockTTL time.Duration
}

// WithName 设置任务名，同时作为抢锁的资源名。
// 未命名的任务不抢锁，在每个副本上执行。
func WithName(name string) JobOption {
	return func(o *jobOptions) {
		o.name = name
	}
}

// WithTimeout 设置单次执行的超时。0 表示不限制（默认）。
func WithTimeout(d time.Duration) JobOption {
	return func(o *jobOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLockTTL 设置本任务的锁 TTL，覆盖调度器默认值。
func WithLockTTL(d time.Duration) JobOption {
	return func(o *jobOptions) {
		if d > 0 {
			o.lockTTL = d
		}
	}
}

// Scheduler 带分布式互斥的定时任务调度器。
// 必须通过 [New] 创建。
type Scheduler struct {
	cron   *cron.Cron
	locker xlock.Locker
	opts   *options
	stats  *Stats
}

// New 创建调度器。locker 为 nil 时所有任务不抢锁。
func New(locker xlock.Locker, opts ...Option) *Scheduler {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	cronOpts := []cron.Option{cron.WithLocation(o.location)}
	if o.seconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}

	return &Scheduler{
		cron:   cron.New(cronOpts...),
		locker: locker,
		opts:   o,
		stats:  newStats(),
	}
}

// AddFunc 添加函数任务。
func (s *Scheduler) AddFunc(spec string, fn func(ctx context.Context) error, opts ...JobOption) (JobID, error) {
	if fn == nil {
		return 0, ErrNilJob
	}
	return s.AddJob(spec, JobFunc(fn), opts...)
}

// AddJob 添加 Job 接口任务。
func (s *Scheduler) AddJob(spec string, job Job, opts ...JobOption) (JobID, error) {
	if job == nil {
		return 0, ErrNilJob
	}

	jo := &jobOptions{lockTTL: s.opts.defaultLockTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(jo)
		}
	}

	if jo.name == "" && s.locker != nil {
		s.opts.logger.Warn("job has no name; it will run on every replica without locking",
			slog.String("spec", spec))
	}

	w := &jobWrapper{
		job:    job,
		opts:   jo,
		locker: s.locker,
		logger: s.opts.logger,
		stats:  s.stats,
	}

	id, err := s.cron.AddJob(spec, w)
	if err != nil {
		return 0, fmt.Errorf("xsched: add job: %w", err)
	}
	return id, nil
}

// Remove 移除任务。
func (s *Scheduler) Remove(id JobID) {
	s.cron.Remove(id)
}

// Start 启动调度器。
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 优雅停止：不再触发新的执行，返回的 ctx 在所有
// 运行中的任务结束后完成。
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Entries 返回所有已注册的任务。
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Stats 返回执行统计。
func (s *Scheduler) Stats() *Stats {
	return s.stats
}
