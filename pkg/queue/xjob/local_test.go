package xjob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/apexkit/pkg/observability/xalert"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// captureAlerter 记录收到的告警事件。
type captureAlerter struct {
	mu     sync.Mutex
	events []xalert.Event
}

func (a *captureAlerter) Emit(ev xalert.Event) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return true
}

func (a *captureAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

func TestLocalQueue_EnqueueDequeueAck(t *testing.T) {
	ctx := context.Background()
	q := NewLocal()
	defer q.Close(ctx)

	id, err := q.Enqueue(ctx, &Job{Type: "send-email", Payload: []byte(`{"to":"a@b"}`)})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, d.Job.ID)
	assert.Equal(t, "send-email", d.Job.Type)
	assert.Equal(t, 1, d.Job.Attempts)

	rec, err = q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, rec.Status)

	require.NoError(t, d.Ack(ctx))
	rec, err = q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.True(t, rec.Status.Terminal())
}

func TestLocalQueue_Enqueue_Validation(t *testing.T) {
	ctx := context.Background()
	q := NewLocal()
	defer q.Close(ctx)

	_, err := q.Enqueue(ctx, &Job{Type: "  "})
	assert.ErrorIs(t, err, ErrEmptyType)
}

func TestLocalQueue_Enqueue_Full(t *testing.T) {
	ctx := context.Background()
	q := NewLocal(WithCapacity(1))
	defer q.Close(ctx)

	_, err := q.Enqueue(ctx, &Job{Type: "t"})
	require.NoError(t, err)

	id, err := q.Enqueue(ctx, &Job{ID: "rejected", Type: "t"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Empty(t, id)

	// 被拒绝的任务不留状态。
	_, err = q.Status(ctx, "rejected")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestLocalQueue_Dequeue_ContextCancel(t *testing.T) {
	q := NewLocal()
	defer q.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalQueue_Dequeue_Closed(t *testing.T) {
	ctx := context.Background()
	q := NewLocal()
	require.NoError(t, q.Close(ctx))

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = q.Enqueue(ctx, &Job{Type: "t"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

// 两次可重试失败后任务进入终态 Failed，且恰好发出一条告警。
func TestLocalQueue_RetryThenTerminalFailure(t *testing.T) {
	ctx := context.Background()
	alerter := &captureAlerter{}
	q := NewLocal(
		WithMaxAttempts(2),
		WithRetryBaseDelay(10*time.Millisecond),
		WithAlerter(alerter),
	)
	defer q.Close(ctx)

	id, err := q.Enqueue(ctx, &Job{Type: "flaky"})
	require.NoError(t, err)

	// 第一次失败：可重试，退避后重新投递。
	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Fail(ctx, errors.New("boom"), true))

	rec, err := q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.True(t, rec.Retryable)
	assert.Equal(t, 1, rec.Attempts)
	assert.Zero(t, alerter.count())

	// 第二次失败：达到上限，终态 Failed。
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	d, err = q.Dequeue(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Job.Attempts)
	require.NoError(t, d.Fail(ctx, errors.New("boom"), true))

	rec, err = q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.False(t, rec.Retryable)
	assert.Equal(t, "boom", rec.Error)
	assert.Equal(t, 1, alerter.count())
}

// 不可重试的失败直接进入终态，不消耗剩余尝试次数。
func TestLocalQueue_NonRetryableFailure(t *testing.T) {
	ctx := context.Background()
	alerter := &captureAlerter{}
	q := NewLocal(WithMaxAttempts(5), WithAlerter(alerter))
	defer q.Close(ctx)

	id, err := q.Enqueue(ctx, &Job{Type: "bad-input"})
	require.NoError(t, err)

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Fail(ctx, errors.New("malformed payload"), false))

	rec, err := q.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, 1, alerter.count())
}

func TestDelivery_SettleOnce(t *testing.T) {
	ctx := context.Background()
	q := NewLocal()
	defer q.Close(ctx)

	_, err := q.Enqueue(ctx, &Job{Type: "t"})
	require.NoError(t, err)

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Ack(ctx))
	assert.ErrorIs(t, d.Ack(ctx), ErrAlreadySettled)
	assert.ErrorIs(t, d.Fail(ctx, errors.New("late"), true), ErrAlreadySettled)
}

func TestLocalQueue_SetStatus(t *testing.T) {
	ctx := context.Background()
	q := NewLocal()
	defer q.Close(ctx)

	require.NoError(t, q.SetStatus(ctx, "external-1", &StatusRecord{
		Status:   StatusProcessing,
		Attempts: 1,
	}))

	rec, err := q.Status(ctx, "external-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, rec.Status)
	assert.False(t, rec.UpdatedAt.IsZero())

	_, err = q.Status(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestLocalQueue_Stats(t *testing.T) {
	ctx := context.Background()
	q := NewLocal()
	defer q.Close(ctx)

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, &Job{Type: "t"})
		require.NoError(t, err)
	}
	d, err := q.Dequeue(ctx)
	require.NoError(t, err)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Depth)
	assert.Equal(t, int64(1), stats.InFlight)
	assert.Equal(t, int64(2), stats.Statuses[StatusPending])
	assert.Equal(t, int64(1), stats.Statuses[StatusProcessing])

	require.NoError(t, d.Ack(ctx))
}

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed} {
		got, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseStatus("bogus")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}
