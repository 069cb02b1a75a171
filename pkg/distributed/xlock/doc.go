// Package xlock 提供跨进程互斥锁的统一抽象，支持 Redis 和进程内两种后端。
//
// # 设计理念
//
//   - Locker: 锁提供方，按资源名发放锁
//   - Handle: 一次成功获取的凭证，Unlock/Renew 只作用于本次获取
//   - Fencing token: 每次成功获取返回单调递增的整数，外部写操作应携带
//     该 token 以拒绝过期持有者的迟到写入
//
// TryAcquire 是非阻塞的：锁被其他持有者占用时返回 (nil, nil)，
// 这是正常的竞争结果而非错误。
//
// # 后端选择
//
//   - NewRedis: 基于 redsync（SET NX PX + 原子脚本释放），多进程互斥
//   - NewLocal: 进程内锁表，适用于单副本部署；语义与分布式版本一致，
//     包括 TTL 过期与 fencing token
//
// 两种后端对调用方完全透明，通过 xcap 的配置在启动时一次性选定。
package xlock
