package xsched

import "errors"

var (
	// ErrNilJob 任务为空。
	ErrNilJob = errors.New("xsched: job is nil")

	// ErrNilLocker 锁提供方为空。
	ErrNilLocker = errors.New("xsched: locker is nil")
)
