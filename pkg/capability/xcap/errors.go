package xcap

import "errors"

var (
	// ErrConfig 配置非法。
	ErrConfig = errors.New("xcap: invalid config")

	// ErrClosed 能力束已关闭。
	ErrClosed = errors.New("xcap: bundle is closed")
)
