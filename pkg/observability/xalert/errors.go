package xalert

import "errors"

// 预定义错误。
var (
	// ErrNilSink Sink 为空。
	ErrNilSink = errors.New("xalert: sink is nil")

	// ErrUnknownSeverity 无法解析的级别名称。
	ErrUnknownSeverity = errors.New("xalert: unknown severity")

	// ErrSinkFailed 派发到 Sink 失败（网络错误或非 2xx 响应）。
	ErrSinkFailed = errors.New("xalert: sink delivery failed")

	// ErrEmptyURL Webhook 地址为空。
	ErrEmptyURL = errors.New("xalert: webhook url must not be empty")
)
