// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xalert: 告警事件分发，缓冲队列、webhook 投递与 slog 桥接
//
// 设计原则：
//   - 告警产生方永不阻塞，缓冲满时按策略丢弃并计数
//   - 投递失败不向业务传播
//   - 与 log/slog 自然集成，高等级日志可直接转为告警
package observability
