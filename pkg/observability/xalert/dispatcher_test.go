package xalert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collectSink 收集派发的事件，供断言使用。
type collectSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *collectSink) Send(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *collectSink) collected() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestNewNilSink(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilSink)
}

func TestEmitThresholdFilter(t *testing.T) {
	d, err := New(&collectSink{}, WithThreshold(SeverityCritical), WithLogger(discardLogger()))
	require.NoError(t, err)

	assert.False(t, d.Emit(NewEvent(SeverityInfo, "info", nil)))
	assert.False(t, d.Emit(NewEvent(SeverityError, "error", nil)))
	assert.True(t, d.Emit(NewEvent(SeverityCritical, "critical", nil)))

	stats := d.Stats()
	assert.Equal(t, uint64(2), stats.Filtered)
	assert.Equal(t, uint64(1), stats.Emitted)
}

func TestDispatchLoop(t *testing.T) {
	sink := &collectSink{}
	d, err := New(sink, WithThreshold(SeverityError), WithLogger(discardLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	d.Emit(NewEvent(SeverityError, "boom-1", map[string]any{"job": "j-1"}))
	d.Emit(NewEvent(SeverityCritical, "boom-2", nil))

	require.Eventually(t, func() bool {
		return len(sink.collected()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	events := sink.collected()
	assert.Equal(t, "boom-1", events[0].Message)
	assert.Equal(t, "j-1", events[0].Fields["job"])
	assert.Equal(t, "boom-2", events[1].Message)

	cancel()
	<-done
}

func TestDropOldest(t *testing.T) {
	// 没有消费者，缓冲大小 2
	d, err := New(&collectSink{},
		WithThreshold(SeverityInfo),
		WithBufferSize(2),
		WithDropPolicy(DropOldest),
		WithLogger(discardLogger()),
	)
	require.NoError(t, err)

	require.True(t, d.Emit(NewEvent(SeverityError, "e1", nil)))
	require.True(t, d.Emit(NewEvent(SeverityError, "e2", nil)))
	require.True(t, d.Emit(NewEvent(SeverityError, "e3", nil))) // 挤掉 e1

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, 2, d.Pending())

	// 留在缓冲里的是 e2、e3
	ev := <-d.events
	assert.Equal(t, "e2", ev.Message)
}

func TestDropNewest(t *testing.T) {
	d, err := New(&collectSink{},
		WithThreshold(SeverityInfo),
		WithBufferSize(2),
		WithDropPolicy(DropNewest),
		WithLogger(discardLogger()),
	)
	require.NoError(t, err)

	require.True(t, d.Emit(NewEvent(SeverityError, "e1", nil)))
	require.True(t, d.Emit(NewEvent(SeverityError, "e2", nil)))
	require.False(t, d.Emit(NewEvent(SeverityError, "e3", nil))) // 新事件被丢弃

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Dropped)

	ev := <-d.events
	assert.Equal(t, "e1", ev.Message)
}

func TestSinkFailureDoesNotPropagate(t *testing.T) {
	sink := &collectSink{err: errors.New("sink down")}
	d, err := New(sink, WithThreshold(SeverityError), WithLogger(discardLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	// Emit 不阻塞、不报错
	assert.True(t, d.Emit(NewEvent(SeverityError, "boom", nil)))

	require.Eventually(t, func() bool {
		return d.Stats().Failed == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestSeverityParse(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Severity
	}{
		{"info", SeverityInfo},
		{"warn", SeverityWarn},
		{"warning", SeverityWarn},
		{"error", SeverityError},
		{"critical", SeverityCritical},
	} {
		got, err := ParseSeverity(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseSeverity("fatal")
	assert.ErrorIs(t, err, ErrUnknownSeverity)
}
