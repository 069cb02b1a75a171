package xjob

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/omeyang/apexkit/pkg/observability/xalert"
)

// Queue 后台任务队列。
// 所有方法并发安全，由 [NewLocal] 和 [NewRedis] 实现。
type Queue interface {
	// Enqueue 入队任务并登记 Pending 状态，返回任务 ID。
	// 队列满返回 ErrQueueFull，已关闭返回 ErrQueueClosed。
	Enqueue(ctx context.Context, job *Job) (string, error)

	// Dequeue 阻塞获取下一个任务，直到有任务、ctx 取消或队列关闭。
	// 被取消的 Dequeue 不丢任务：未被取走的任务留在队列中。
	Dequeue(ctx context.Context) (*Delivery, error)

	// Status 查询任务状态。不存在或已过保留期返回 ErrJobNotFound。
	Status(ctx context.Context, id string) (*StatusRecord, error)

	// SetStatus 覆写任务状态，供外部处理流程登记进度。
	SetStatus(ctx context.Context, id string, rec *StatusRecord) error

	// Stats 返回队列状态快照。
	Stats(ctx context.Context) (*Stats, error)

	// Close 关闭队列。阻塞中的 Dequeue 返回 ErrQueueClosed。
	Close(ctx context.Context) error
}

// Stats 队列状态快照。
// Statuses 仅本地实现填充；分布式实现按任务 ID 点查，不做全量扫描。
type Stats struct {
	Depth    int64            `json:"depth"`
	Delayed  int64            `json:"delayed"`
	InFlight int64            `json:"in_flight"`
	Statuses map[Status]int64 `json:"statuses,omitempty"`
}

// Alerter 终态失败的告警出口。[xalert.Dispatcher] 满足此接口。
type Alerter interface {
	Emit(event xalert.Event) bool
}

// settler 由各后端实现的投递结算逻辑。
type settler interface {
	ack(ctx context.Context, d *Delivery) error
	fail(ctx context.Context, d *Delivery, cause error, retryable bool) error
}

// Delivery 一次任务投递。
// 必须调用 Ack 或 Fail 之一完成结算；重复结算返回 ErrAlreadySettled。
type Delivery struct {
	Job *Job

	queue   settler
	msgID   string // 分布式实现的 stream entry ID
	settled atomic.Bool
}

// Ack 确认任务处理成功。
func (d *Delivery) Ack(ctx context.Context) error {
	if d.settled.Swap(true) {
		return ErrAlreadySettled
	}
	return d.queue.ack(ctx, d)
}

// Fail 报告任务处理失败。
// retryable 且尝试次数未达上限时按指数退避重新入队；
// 否则进入终态 Failed，并发出恰好一条告警。
func (d *Delivery) Fail(ctx context.Context, cause error, retryable bool) error {
	if d.settled.Swap(true) {
		return ErrAlreadySettled
	}
	return d.queue.fail(ctx, d, cause, retryable)
}

// Option 队列配置选项。
type Option func(*options)

type options struct {
	capacity          int
	maxAttempts       int
	retryBaseDelay    time.Duration
	retryMaxDelay     time.Duration
	statusRetention   time.Duration
	statusCapacity    int
	visibilityTimeout time.Duration
	pollInterval      time.Duration
	group             string
	alerter           Alerter
	logger            *slog.Logger
}

func defaultQueueOptions() *options {
	return &options{
		capacity:          1024,
		maxAttempts:       3,
		retryBaseDelay:    time.Second,
		retryMaxDelay:     time.Minute,
		statusRetention:   time.Hour,
		statusCapacity:    10000,
		visibilityTimeout: 30 * time.Second,
		pollInterval:      time.Second,
		group:             "workers",
		logger:            slog.Default(),
	}
}

// WithCapacity 设置本地队列容量。默认 1024。
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithMaxAttempts 设置默认尝试次数上限，任务自带的 MaxAttempts 优先。默认 3。
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithRetryBaseDelay 设置重试退避基准。默认 1s，逐次翻倍。
func WithRetryBaseDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryBaseDelay = d
		}
	}
}

// WithRetryMaxDelay 设置重试退避上限。默认 1m。
func WithRetryMaxDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryMaxDelay = d
		}
	}
}

// WithStatusRetention 设置终态状态的保留期。默认 1h。
func WithStatusRetention(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.statusRetention = d
		}
	}
}

// WithStatusCapacity 设置本地状态存储容量。默认 10000。
func WithStatusCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.statusCapacity = n
		}
	}
}

// WithVisibilityTimeout 设置分布式实现的可见性超时：
// 超过该时长未确认的任务被重新投递。默认 30s。
func WithVisibilityTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.visibilityTimeout = d
		}
	}
}

// WithPollInterval 设置分布式实现的拉取阻塞时长。默认 1s。
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithGroup 设置分布式实现的消费组名。默认 "workers"。
func WithGroup(group string) Option {
	return func(o *options) {
		if group != "" {
			o.group = group
		}
	}
}

// WithAlerter 设置终态失败的告警出口。不设置则仅记录日志。
func WithAlerter(a Alerter) Option {
	return func(o *options) {
		o.alerter = a
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

// backoff 第 attempt 次失败后的重试延迟，指数增长、封顶。
func (o *options) backoff(attempt int) time.Duration {
	d := o.retryBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= o.retryMaxDelay {
			return o.retryMaxDelay
		}
	}
	if d > o.retryMaxDelay {
		return o.retryMaxDelay
	}
	return d
}

// alertTerminalFailure 终态失败发出恰好一条告警。
func (o *options) alertTerminalFailure(job *Job, cause error) {
	o.logger.Error("job failed permanently",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
		slog.Int("attempts", job.Attempts),
		slog.String("error", cause.Error()),
	)
	if o.alerter == nil {
		return
	}
	o.alerter.Emit(xalert.NewEvent(xalert.SeverityCritical,
		"job failed permanently",
		map[string]any{
			"job_id":   job.ID,
			"job_type": job.Type,
			"attempts": job.Attempts,
			"error":    cause.Error(),
		},
	))
}
