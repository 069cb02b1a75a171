// Package xtenant 提供按租户惰性建连的连接注册表。
//
// # 语义
//
//   - 每个租户 key 任意时刻至多对应一个底层连接（single-flight 创建：
//     并发的首次 Acquire 只触发一次建连，结果共享）
//   - Acquire 增加引用计数，Release 减少；引用计数为零且空闲超过
//     IdleTimeout 的连接由后台清扫回收，最久空闲的优先
//   - 驻留连接数受 MaxResident 约束：达到上限时先尝试逐出空闲连接
//     （LRU），无可逐出者则 Acquire 返回 [ErrCapacity]
//
// 注册表按 key 分片加锁，不同租户的操作互不串行。
// 建连受 ConnectTimeout 约束，超时返回 [ErrBackendUnavailable]。
//
// # 连接类型
//
// 底层连接通过 [Connector] 注入，内置 Redis 和 MongoDB 两种实现；
// 任何满足 [Conn] 接口的类型都可以纳管。
package xtenant
