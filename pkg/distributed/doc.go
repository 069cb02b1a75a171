// Package distributed 提供分布式协调相关的子包。
//
// 子包列表：
//   - xlock: 互斥锁，Redis 与进程内两种后端，带 fencing token
//   - xsched: 定时任务调度，通过 xlock 保证多副本下单实例执行
//
// 设计原则：
//   - 统一的锁接口，调用方不感知后端形态
//   - 非阻塞抢锁，竞争不是错误
//   - 支持锁续期和优雅释放
package distributed
