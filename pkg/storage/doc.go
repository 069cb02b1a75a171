// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xtenant: 按租户管理的连接注册表，内置 Redis 与 MongoDB 连接器
//   - xcache: 带 TTL 的字节值缓存，进程内（ristretto）与 Redis 两种后端
//
// 设计原则：
//   - 同租户并发建连合并为一次（single-flight）
//   - 引用计数 + 空闲回收，连接生命周期对调用方透明
//   - 容量受限时逐出最久空闲的连接
//   - 缓存未命中不是错误，后端故障与未命中严格区分
package storage
