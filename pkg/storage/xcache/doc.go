// Package xcache 提供带 TTL 的字节值缓存，含进程内和 Redis 两种后端。
//
// 两种后端实现同一个 [Cache] 接口，调用方通过配置选择，无需感知差异：
//
//   - [NewLocal]：基于 ristretto 的进程内缓存。单副本部署的默认选择，
//     进程重启后数据丢失。
//   - [NewRedis]：基于 Redis 的共享缓存，多副本间读写一致。
//
// # 语义
//
//   - Set 的 ttl 为 0 表示不过期，负数非法
//   - Get 未命中返回 (nil, false, nil)，未命中不是错误
//   - 后端不可达返回 [ErrBackendUnavailable] 包装的错误
//
// # 使用示例
//
//	c := xcache.NewLocal()
//	defer c.Close(ctx)
//
//	_ = c.Set(ctx, "session:42", payload, 10*time.Minute)
//	val, ok, err := c.Get(ctx, "session:42")
package xcache
