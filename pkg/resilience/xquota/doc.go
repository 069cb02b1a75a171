// Package xquota 提供按 key 的令牌桶限流，支持本地和 Redis 两种后端。
//
// # 语义
//
// 每个 key 对应一个令牌桶：容量 = burst，连续补充速率 = rate/window。
// Allow/AllowN 是"检查并消费"的原子操作；本地后端按桶加锁，
// 分布式后端使用 redis_rate 的服务端原子脚本，多进程观察到同一个计数。
//
// # 失败策略
//
// 分布式后端不可用时的行为由 [Policy] 配置决定：
//
//   - PolicyOpen: 放行并记录日志（可用性优先，默认）
//   - PolicyClosed: 拒绝并返回 [ErrStoreUnavailable]（安全敏感配额）
//   - PolicyLocal: 降级到进程内令牌桶
//
// 哪种策略"正确"取决于配额的用途，这是运维配置而非固定规则。
// 后端错误与 allowed=false 是两种不同的结果：前者通过 error 返回，
// 后者是正常的限流判定。
//
// 分布式后端由熔断器保护：连续失败后短路到失败策略，
// 避免每个请求都等待一次超时。
package xquota
