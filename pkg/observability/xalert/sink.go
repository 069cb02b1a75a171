package xalert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Sink 告警接收端。
type Sink interface {
	// Send 派发单个事件。
	// 返回错误表示本次派发失败；Dispatcher 记录后丢弃，不会无限重试。
	Send(ctx context.Context, ev Event) error
}

// SinkFunc 函数适配器。
type SinkFunc func(ctx context.Context, ev Event) error

// Send 实现 [Sink] 接口。
func (f SinkFunc) Send(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// WebhookOption WebhookSink 配置选项。
type WebhookOption func(*WebhookSink)

// WithHTTPClient 设置 HTTP 客户端。默认 10s 超时的 http.Client。
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(s *WebhookSink) {
		if client != nil {
			s.client = client
		}
	}
}

// WithAttempts 设置单个事件的投递尝试次数（含首次）。默认 3。
func WithAttempts(n uint) WebhookOption {
	return func(s *WebhookSink) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WebhookSink 以 HTTP POST 投递 JSON 事件体
// {severity, message, fields, timestamp} 到配置的地址。
// 非 2xx 响应和传输错误都视为派发失败。
type WebhookSink struct {
	url      string
	client   *http.Client
	attempts uint
}

// NewWebhookSink 创建 Webhook Sink。
func NewWebhookSink(url string, opts ...WebhookOption) (*WebhookSink, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	s := &WebhookSink{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		attempts: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send 投递事件，失败时做有限次重试。
func (s *WebhookSink) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(struct {
		Severity  string         `json:"severity"`
		Message   string         `json:"message"`
		Fields    map[string]any `json:"fields,omitempty"`
		Timestamp time.Time      `json:"timestamp"`
	}{
		Severity:  ev.Severity.String(),
		Message:   ev.Message,
		Fields:    ev.Fields,
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrSinkFailed, err)
	}

	err = retry.New(
		retry.Attempts(s.attempts),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error { return s.post(ctx, body) })
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSinkFailed, err)
	}
	return nil
}

func (s *WebhookSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

var (
	_ Sink = (*WebhookSink)(nil)
	_ Sink = (SinkFunc)(nil)
)
