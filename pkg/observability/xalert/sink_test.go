package xalert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebhookSinkEmptyURL(t *testing.T) {
	_, err := NewWebhookSink("")
	assert.ErrorIs(t, err, ErrEmptyURL)
}

func TestWebhookSinkSend(t *testing.T) {
	var got struct {
		Severity  string         `json:"severity"`
		Message   string         `json:"message"`
		Fields    map[string]any `json:"fields"`
		Timestamp time.Time      `json:"timestamp"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(srv.URL)
	require.NoError(t, err)

	ev := NewEvent(SeverityCritical, "job failed permanently", map[string]any{"job_id": "j-42"})
	require.NoError(t, sink.Send(context.Background(), ev))

	assert.Equal(t, "critical", got.Severity)
	assert.Equal(t, "job failed permanently", got.Message)
	assert.Equal(t, "j-42", got.Fields["job_id"])
	assert.False(t, got.Timestamp.IsZero())
}

func TestWebhookSinkNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(srv.URL, WithAttempts(2))
	require.NoError(t, err)

	err = sink.Send(context.Background(), NewEvent(SeverityCritical, "boom", nil))
	assert.ErrorIs(t, err, ErrSinkFailed)
}

func TestWebhookSinkRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(srv.URL, WithAttempts(3))
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), NewEvent(SeverityCritical, "boom", nil)))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookSinkUnreachable(t *testing.T) {
	sink, err := NewWebhookSink("http://127.0.0.1:1/alerts", WithAttempts(2))
	require.NoError(t, err)

	err = sink.Send(context.Background(), NewEvent(SeverityCritical, "boom", nil))
	assert.ErrorIs(t, err, ErrSinkFailed)
}
