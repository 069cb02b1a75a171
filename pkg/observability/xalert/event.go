package xalert

import (
	"fmt"
	"time"
)

// Severity 事件严重级别。
type Severity int

// 严重级别，从低到高。
const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
	SeverityCritical
)

// String 返回级别名称。
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity 从名称解析级别。未知名称返回错误。
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "info":
		return SeverityInfo, nil
	case "warn", "warning":
		return SeverityWarn, nil
	case "error":
		return SeverityError, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
	}
}

// Event 一条告警事件。
// 创建后不可变；Fields 在 Emit 后不得再被调用方修改。
type Event struct {
	// Severity 严重级别。
	Severity Severity `json:"severity"`

	// Message 事件描述。
	Message string `json:"message"`

	// Fields 结构化字段。
	Fields map[string]any `json:"fields,omitempty"`

	// Timestamp 事件产生时间。
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent 创建事件，时间戳取当前时间。
func NewEvent(severity Severity, message string, fields map[string]any) Event {
	return Event{
		Severity:  severity,
		Message:   message,
		Fields:    fields,
		Timestamp: time.Now(),
	}
}
