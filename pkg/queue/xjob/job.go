package xjob

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status 任务生命周期状态。
// 状态机：Pending → Processing → {Completed, Failed}；
// 可重试失败回到 Pending。
type Status int

const (
	// StatusPending 等待投递。
	StatusPending Status = iota
	// StatusProcessing 已投递，处理中。
	StatusProcessing
	// StatusCompleted 处理成功，终态。
	StatusCompleted
	// StatusFailed 处理失败且不再重试，终态。
	StatusFailed
)

// String 实现 fmt.Stringer。
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal 报告是否为终态。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus 解析状态字符串，大小写不敏感。
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "processing":
		return StatusProcessing, nil
	case "completed":
		return StatusCompleted, nil
	case "failed":
		return StatusFailed, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// MarshalText 实现 encoding.TextMarshaler。
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler。
func (s *Status) UnmarshalText(data []byte) error {
	parsed, err := ParseStatus(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Job 一个后台任务。
// Payload 对队列透明，序列化格式由生产者与消费者约定。
type Job struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Payload     []byte    `json:"payload,omitempty"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// normalize 校验并补全任务字段。
func (j *Job) normalize(defaultMaxAttempts int) error {
	if strings.TrimSpace(j.Type) == "" {
		return ErrEmptyType
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = defaultMaxAttempts
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now()
	}
	return nil
}

// StatusRecord 任务状态记录。
type StatusRecord struct {
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	Retryable bool      `json:"retryable"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
