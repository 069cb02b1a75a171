package xfanout

import "errors"

var (
	// ErrEmptyChannel 频道名为空。
	ErrEmptyChannel = errors.New("xfanout: channel is empty")

	// ErrClosed 已关闭。
	ErrClosed = errors.New("xfanout: pubsub is closed")

	// ErrBackendUnavailable 后端不可用。
	ErrBackendUnavailable = errors.New("xfanout: backend unavailable")

	// ErrNilClient redis 客户端为空。
	ErrNilClient = errors.New("xfanout: nil redis client")
)
