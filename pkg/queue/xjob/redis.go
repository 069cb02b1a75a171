package xjob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "apexjob:"
	jobField         = "job"
	promoteBatch     = 16
)

// redisQueue Redis Streams 消费组实现。
//
// 任务以 JSON 形式写入 stream，消费组保证同一条目只投递给一个
// 消费者；超过可见性超时未确认的条目由 XAUTOCLAIM 重新投递，
// 语义为至少一次。延迟重试暂存于 zset，到期后提升回 stream。
type redisQueue struct {
	client   redis.UniversalClient
	opts     *options
	stream   string // stream key
	delayed  string // 延迟任务 zset key
	statusNS string // 状态 key 前缀
	consumer string
	ready    atomic.Bool // 消费组已创建
	closed   atomic.Bool
}

var _ Queue = (*redisQueue)(nil)

// NewRedis 创建 Redis Streams 队列。
// name 区分不同业务队列，同名队列共享 stream 与消费组。
func NewRedis(client redis.UniversalClient, name string, opts ...Option) (Queue, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("xjob: queue name is empty")
	}

	o := defaultQueueOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	base := defaultKeyPrefix + name
	return &redisQueue{
		client:   client,
		opts:     o,
		stream:   base,
		delayed:  base + ":delayed",
		statusNS: base + ":status:",
		consumer: uuid.NewString(),
	}, nil
}

// ensureGroup 幂等地创建消费组。起始位点 "0" 保证早于消费组
// 创建的积压任务也会被投递。
func (q *redisQueue) ensureGroup(ctx context.Context) error {
	if q.ready.Load() {
		return nil
	}
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.opts.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return q.wrapErr(ctx, err)
	}
	q.ready.Store(true)
	return nil
}

// Enqueue 实现 [Queue] 接口。
func (q *redisQueue) Enqueue(ctx context.Context, job *Job) (string, error) {
	if q.closed.Load() {
		return "", ErrQueueClosed
	}
	if err := job.normalize(q.opts.maxAttempts); err != nil {
		return "", err
	}
	if err := q.ensureGroup(ctx); err != nil {
		return "", err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("xjob: marshal job: %w", err)
	}

	if err := q.putStatus(ctx, job.ID, &StatusRecord{
		Status:    StatusPending,
		UpdatedAt: time.Now(),
	}); err != nil {
		return "", err
	}

	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{jobField: string(data)},
	}).Err(); err != nil {
		return "", q.wrapErr(ctx, err)
	}
	return job.ID, nil
}

// Dequeue 实现 [Queue] 接口。
func (q *redisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	if err := q.ensureGroup(ctx); err != nil {
		return nil, err
	}

	for {
		if q.closed.Load() {
			return nil, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q.promoteDelayed(ctx)

		if msg, ok := q.reclaim(ctx); ok {
			return q.deliver(ctx, msg)
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.opts.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    1,
			Block:    q.opts.pollInterval,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, q.wrapErr(ctx, err)
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			continue
		}
		return q.deliver(ctx, streams[0].Messages[0])
	}
}

// reclaim 夺回超过可见性超时仍未确认的条目。
func (q *redisQueue) reclaim(ctx context.Context) (redis.XMessage, bool) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.opts.group,
		Consumer: q.consumer,
		MinIdle:  q.opts.visibilityTimeout,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil || len(msgs) == 0 {
		return redis.XMessage{}, false
	}
	return msgs[0], true
}

// promoteDelayed 把到期的延迟任务提升回 stream。
// ZRem 成功者才执行 XAdd，多个消费者并发提升不会重复投递。
func (q *redisQueue) promoteDelayed(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatch,
	}).Result()
	if err != nil || len(members) == 0 {
		return
	}

	for _, member := range members {
		removed, err := q.client.ZRem(ctx, q.delayed, member).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.XAdd(ctx, &redis.XAddArgs{
			Stream: q.stream,
			Values: map[string]any{jobField: member},
		}).Err(); err != nil {
			q.opts.logger.Warn("failed to promote delayed job",
				slog.String("error", err.Error()))
		}
	}
}

// deliver 把 stream 条目转为一次投递。
func (q *redisQueue) deliver(ctx context.Context, msg redis.XMessage) (*Delivery, error) {
	raw, _ := msg.Values[jobField].(string)
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// 无法解析的条目直接确认移除，避免反复重投毒化队列。
		_ = q.client.XAck(ctx, q.stream, q.opts.group, msg.ID).Err()
		_ = q.client.XDel(ctx, q.stream, msg.ID).Err()
		return nil, fmt.Errorf("xjob: unmarshal job: %w", err)
	}

	// 同一条目被重投时 JSON 里的计数是旧值，以状态记录为准。
	job.Attempts++
	if rec, err := q.Status(ctx, job.ID); err == nil && rec.Attempts >= job.Attempts {
		job.Attempts = rec.Attempts + 1
	}

	if err := q.putStatus(ctx, job.ID, &StatusRecord{
		Status:    StatusProcessing,
		Attempts:  job.Attempts,
		UpdatedAt: time.Now(),
	}); err != nil {
		return nil, err
	}
	return &Delivery{Job: &job, queue: q, msgID: msg.ID}, nil
}

func (q *redisQueue) ack(ctx context.Context, d *Delivery) error {
	if err := q.client.XAck(ctx, q.stream, q.opts.group, d.msgID).Err(); err != nil {
		return q.wrapErr(ctx, err)
	}
	_ = q.client.XDel(ctx, q.stream, d.msgID).Err()
	return q.putStatus(ctx, d.Job.ID, &StatusRecord{
		Status:    StatusCompleted,
		Attempts:  d.Job.Attempts,
		UpdatedAt: time.Now(),
	})
}

func (q *redisQueue) fail(ctx context.Context, d *Delivery, cause error, retryable bool) error {
	if err := q.client.XAck(ctx, q.stream, q.opts.group, d.msgID).Err(); err != nil {
		return q.wrapErr(ctx, err)
	}
	_ = q.client.XDel(ctx, q.stream, d.msgID).Err()

	job := d.Job
	if !retryable || job.Attempts >= job.MaxAttempts {
		q.opts.alertTerminalFailure(job, cause)
		return q.putStatus(ctx, job.ID, &StatusRecord{
			Status:    StatusFailed,
			Attempts:  job.Attempts,
			Retryable: false,
			Error:     cause.Error(),
			UpdatedAt: time.Now(),
		})
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("xjob: marshal job: %w", err)
	}
	due := time.Now().Add(q.opts.backoff(job.Attempts))
	if err := q.client.ZAdd(ctx, q.delayed, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: string(data),
	}).Err(); err != nil {
		return q.wrapErr(ctx, err)
	}
	return q.putStatus(ctx, job.ID, &StatusRecord{
		Status:    StatusPending,
		Attempts:  job.Attempts,
		Retryable: true,
		Error:     cause.Error(),
		UpdatedAt: time.Now(),
	})
}

// Status 实现 [Queue] 接口。
func (q *redisQueue) Status(ctx context.Context, id string) (*StatusRecord, error) {
	raw, err := q.client.Get(ctx, q.statusNS+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, q.wrapErr(ctx, err)
	}
	var rec StatusRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("xjob: unmarshal status: %w", err)
	}
	return &rec, nil
}

// SetStatus 实现 [Queue] 接口。
func (q *redisQueue) SetStatus(ctx context.Context, id string, rec *StatusRecord) error {
	cp := *rec
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	return q.putStatus(ctx, id, &cp)
}

func (q *redisQueue) putStatus(ctx context.Context, id string, rec *StatusRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("xjob: marshal status: %w", err)
	}
	if err := q.client.Set(ctx, q.statusNS+id, data, q.opts.statusRetention).Err(); err != nil {
		return q.wrapErr(ctx, err)
	}
	return nil
}

// Stats 实现 [Queue] 接口。状态分布不做全量扫描，Statuses 为空。
func (q *redisQueue) Stats(ctx context.Context) (*Stats, error) {
	depth, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, q.wrapErr(ctx, err)
	}
	delayed, err := q.client.ZCard(ctx, q.delayed).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, q.wrapErr(ctx, err)
	}

	var inflight int64
	if pending, err := q.client.XPending(ctx, q.stream, q.opts.group).Result(); err == nil {
		inflight = pending.Count
	}

	return &Stats{Depth: depth, Delayed: delayed, InFlight: inflight}, nil
}

// Close 实现 [Queue] 接口。redis 客户端由调用方管理，这里不关闭。
func (q *redisQueue) Close(ctx context.Context) error {
	q.closed.Store(true)
	return nil
}

func (q *redisQueue) wrapErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
