package xtenant

import "errors"

// 预定义错误。
var (
	// ErrEmptyTenant 租户 key 为空。
	ErrEmptyTenant = errors.New("xtenant: tenant key must not be empty")

	// ErrNilConnector Connector 为空。
	ErrNilConnector = errors.New("xtenant: connector is nil")

	// ErrBackendUnavailable 建连失败或超时。
	ErrBackendUnavailable = errors.New("xtenant: backend unavailable")

	// ErrCapacity 驻留连接数达到上限且无可逐出的空闲连接。
	ErrCapacity = errors.New("xtenant: registry at capacity")

	// ErrClosed 注册表已关闭。
	ErrClosed = errors.New("xtenant: registry is closed")

	// ErrInvalidShardCount 分片数不是 2 的幂。
	ErrInvalidShardCount = errors.New("xtenant: shard count must be a power of two")
)
