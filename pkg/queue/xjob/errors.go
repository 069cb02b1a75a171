package xjob

import "errors"

var (
	// ErrEmptyType 任务类型为空。
	ErrEmptyType = errors.New("xjob: job type is empty")

	// ErrQueueFull 队列已满，任务被拒绝。
	ErrQueueFull = errors.New("xjob: queue is full")

	// ErrQueueClosed 队列已关闭。
	ErrQueueClosed = errors.New("xjob: queue is closed")

	// ErrJobNotFound 任务状态不存在或已过保留期。
	ErrJobNotFound = errors.New("xjob: job not found")

	// ErrAlreadySettled 投递已被 Ack 或 Fail 处理过。
	ErrAlreadySettled = errors.New("xjob: delivery already settled")

	// ErrBackendUnavailable 后端存储不可用。
	ErrBackendUnavailable = errors.New("xjob: backend unavailable")

	// ErrNilClient redis 客户端为空。
	ErrNilClient = errors.New("xjob: nil redis client")

	// ErrUnknownStatus 未知的任务状态。
	ErrUnknownStatus = errors.New("xjob: unknown status")
)
