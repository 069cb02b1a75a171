package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNilFunc 服务函数为空。
	ErrNilFunc = errors.New("xrun: nil service func")

	// ErrInvalidInterval Ticker 的周期必须为正数。
	ErrInvalidInterval = errors.New("xrun: interval must be positive")

	// ErrSignal 因收到系统信号而终止。
	// 用 errors.Is(err, ErrSignal) 判断，用 errors.As 取具体信号。
	ErrSignal = errors.New("xrun: received signal")
)

// SignalError 携带触发终止的具体信号。
type SignalError struct {
	Signal os.Signal
}

// Error 实现 error 接口。
func (e *SignalError) Error() string {
	return fmt.Sprintf("xrun: received signal %v", e.Signal)
}

// Unwrap 支持 errors.Is(err, ErrSignal)。
func (e *SignalError) Unwrap() error { return ErrSignal }
