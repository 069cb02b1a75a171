package xjob

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// localQueue 进程内任务队列。
// 任务存于有界 channel，状态存于带保留期的 LRU。进程重启后任务丢失。
type localQueue struct {
	opts     *options
	jobs     chan *Job
	status   *expirable.LRU[string, *StatusRecord]
	done     chan struct{}
	closed   atomic.Bool
	inflight atomic.Int64

	mu     sync.Mutex
	timers map[string]*time.Timer // 待重试任务的延迟定时器，按任务 ID
}

var _ Queue = (*localQueue)(nil)

// NewLocal 创建进程内队列。
func NewLocal(opts ...Option) Queue {
	o := defaultQueueOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &localQueue{
		opts:   o,
		jobs:   make(chan *Job, o.capacity),
		status: expirable.NewLRU[string, *StatusRecord](o.statusCapacity, nil, o.statusRetention),
		done:   make(chan struct{}),
		timers: make(map[string]*time.Timer),
	}
}

// Enqueue 实现 [Queue] 接口。
func (q *localQueue) Enqueue(ctx context.Context, job *Job) (string, error) {
	if q.closed.Load() {
		return "", ErrQueueClosed
	}
	if err := job.normalize(q.opts.maxAttempts); err != nil {
		return "", err
	}

	// 先登记状态再入队，保证消费方取到任务时状态一定可见。
	q.putStatus(job.ID, &StatusRecord{Status: StatusPending, UpdatedAt: time.Now()})

	select {
	case q.jobs <- job:
		return job.ID, nil
	default:
		q.status.Remove(job.ID)
		return "", ErrQueueFull
	}
}

// Dequeue 实现 [Queue] 接口。
func (q *localQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	select {
	case job := <-q.jobs:
		job.Attempts++
		q.inflight.Add(1)
		q.putStatus(job.ID, &StatusRecord{
			Status:    StatusProcessing,
			Attempts:  job.Attempts,
			UpdatedAt: time.Now(),
		})
		return &Delivery{Job: job, queue: q}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		return nil, ErrQueueClosed
	}
}

func (q *localQueue) ack(ctx context.Context, d *Delivery) error {
	q.inflight.Add(-1)
	q.putStatus(d.Job.ID, &StatusRecord{
		Status:    StatusCompleted,
		Attempts:  d.Job.Attempts,
		UpdatedAt: time.Now(),
	})
	return nil
}

func (q *localQueue) fail(ctx context.Context, d *Delivery, cause error, retryable bool) error {
	q.inflight.Add(-1)
	job := d.Job

	if !retryable || job.Attempts >= job.MaxAttempts {
		q.putStatus(job.ID, &StatusRecord{
			Status:    StatusFailed,
			Attempts:  job.Attempts,
			Retryable: false,
			Error:     cause.Error(),
			UpdatedAt: time.Now(),
		})
		q.opts.alertTerminalFailure(job, cause)
		return nil
	}

	q.putStatus(job.ID, &StatusRecord{
		Status:    StatusPending,
		Attempts:  job.Attempts,
		Retryable: true,
		Error:     cause.Error(),
		UpdatedAt: time.Now(),
	})
	q.scheduleRetry(job)
	return nil
}

// scheduleRetry 退避后重新入队。
func (q *localQueue) scheduleRetry(job *Job) {
	delay := q.opts.backoff(job.Attempts)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed.Load() {
		return
	}
	q.timers[job.ID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, job.ID)
		q.mu.Unlock()

		// 队列满时等待空位，关闭时放弃。
		select {
		case q.jobs <- job:
		case <-q.done:
		}
	})
}

// Status 实现 [Queue] 接口。
func (q *localQueue) Status(ctx context.Context, id string) (*StatusRecord, error) {
	rec, ok := q.status.Get(id)
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *rec
	return &cp, nil
}

// SetStatus 实现 [Queue] 接口。
func (q *localQueue) SetStatus(ctx context.Context, id string, rec *StatusRecord) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	cp := *rec
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	q.putStatus(id, &cp)
	return nil
}

func (q *localQueue) putStatus(id string, rec *StatusRecord) {
	q.status.Add(id, rec)
}

// Stats 实现 [Queue] 接口。
func (q *localQueue) Stats(ctx context.Context) (*Stats, error) {
	q.mu.Lock()
	delayed := int64(len(q.timers))
	q.mu.Unlock()

	statuses := make(map[Status]int64)
	for _, rec := range q.status.Values() {
		statuses[rec.Status]++
	}

	return &Stats{
		Depth:    int64(len(q.jobs)),
		Delayed:  delayed,
		InFlight: q.inflight.Load(),
		Statuses: statuses,
	}, nil
}

// Close 实现 [Queue] 接口。
func (q *localQueue) Close(ctx context.Context) error {
	if q.closed.Swap(true) {
		return nil
	}

	q.mu.Lock()
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	q.mu.Unlock()

	close(q.done)
	return nil
}
