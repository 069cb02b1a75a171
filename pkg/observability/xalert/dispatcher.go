package xalert

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DropPolicy 缓冲满时的丢弃策略。
type DropPolicy string

const (
	// DropOldest 丢弃最旧的事件，为新事件腾出位置。
	DropOldest DropPolicy = "oldest"

	// DropNewest 丢弃新到达的事件。
	DropNewest DropPolicy = "newest"
)

// Option Dispatcher 配置选项。
type Option func(*Dispatcher)

// WithThreshold 设置派发阈值，低于阈值的事件被过滤。
// 默认 SeverityCritical（只派发最高级别）。
func WithThreshold(s Severity) Option {
	return func(d *Dispatcher) {
		d.threshold = s
	}
}

// WithBufferSize 设置缓冲大小。默认 256。
func WithBufferSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.bufferSize = n
		}
	}
}

// WithDropPolicy 设置丢弃策略。默认 DropOldest。
func WithDropPolicy(p DropPolicy) Option {
	return func(d *Dispatcher) {
		d.dropPolicy = p
	}
}

// WithLogger 设置日志器。默认 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDispatchTimeout 设置单次派发的超时。默认 10s。
func WithDispatchTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.dispatchTimeout = timeout
		}
	}
}

// Stats Dispatcher 统计快照。
type Stats struct {
	// Emitted 通过阈值过滤、进入缓冲的事件数。
	Emitted uint64

	// Filtered 低于阈值被过滤的事件数。
	Filtered uint64

	// Dropped 因缓冲满被丢弃的事件数。
	Dropped uint64

	// Dispatched 成功派发到 Sink 的事件数。
	Dispatched uint64

	// Failed 派发失败（重试耗尽）的事件数。
	Failed uint64
}

// Dispatcher 告警派发器。
//
// 生产者与派发循环之间是一条有界缓冲：Emit 永不阻塞，
// 背压通过显式的丢弃策略处理而非传导给生产者。
type Dispatcher struct {
	sink            Sink
	threshold       Severity
	bufferSize      int
	dropPolicy      DropPolicy
	logger          *slog.Logger
	dispatchTimeout time.Duration

	events chan Event

	emitted    atomic.Uint64
	filtered   atomic.Uint64
	dropped    atomic.Uint64
	dispatched atomic.Uint64
	failed     atomic.Uint64
}

// New 创建 Dispatcher。需配合 [Dispatcher.Run] 启动派发循环。
func New(sink Sink, opts ...Option) (*Dispatcher, error) {
	if sink == nil {
		return nil, ErrNilSink
	}

	d := &Dispatcher{
		sink:            sink,
		threshold:       SeverityCritical,
		bufferSize:      256,
		dropPolicy:      DropOldest,
		logger:          slog.Default(),
		dispatchTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.events = make(chan Event, d.bufferSize)

	return d, nil
}

// Emit 投递事件（非阻塞）。
//
// 返回 true 表示事件进入缓冲。低于阈值返回 false（过滤）；
// 缓冲满时按丢弃策略处理，丢弃只计数，不产生新告警。
func (d *Dispatcher) Emit(ev Event) bool {
	if ev.Severity < d.threshold {
		d.filtered.Add(1)
		return false
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	select {
	case d.events <- ev:
		d.emitted.Add(1)
		return true
	default:
	}

	if d.dropPolicy == DropNewest {
		d.dropped.Add(1)
		return false
	}

	// DropOldest：腾出一个位置后重试一次。
	// 与并发的消费者竞争时两个 select 都可能失败，此时丢弃新事件。
	select {
	case <-d.events:
		d.dropped.Add(1)
	default:
	}
	select {
	case d.events <- ev:
		d.emitted.Add(1)
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Run 运行派发循环，直到 ctx 取消。
// 通常交由 xrun.Group 托管。
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.events:
			d.dispatch(ctx, ev)
		}
	}
}

// dispatch 派发单个事件。失败只记录日志，不上抛。
func (d *Dispatcher) dispatch(ctx context.Context, ev Event) {
	sendCtx, cancel := context.WithTimeout(ctx, d.dispatchTimeout)
	defer cancel()

	if err := d.sink.Send(sendCtx, ev); err != nil {
		d.failed.Add(1)
		d.logger.Warn("alert dispatch failed",
			slog.String("severity", ev.Severity.String()),
			slog.String("message", ev.Message),
			slog.String("error", err.Error()),
		)
		return
	}
	d.dispatched.Add(1)
}

// Stats 返回统计快照。
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Emitted:    d.emitted.Load(),
		Filtered:   d.filtered.Load(),
		Dropped:    d.dropped.Load(),
		Dispatched: d.dispatched.Load(),
		Failed:     d.failed.Load(),
	}
}

// Pending 返回缓冲中等待派发的事件数。
func (d *Dispatcher) Pending() int {
	return len(d.events)
}
