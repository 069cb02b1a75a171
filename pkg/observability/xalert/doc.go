// Package xalert 提供严重错误事件的采集与转发。
//
// 生产者通过 [Dispatcher.Emit] 投递事件：非阻塞，低于阈值的事件被过滤，
// 缓冲满时按配置的 [DropPolicy] 丢弃（丢弃计入统计，不会递归产生新告警）。
// 独立的派发循环（[Dispatcher.Run]）把事件转发到外部 [Sink]。
//
// 告警是尽力而为的能力：派发失败只记录日志，绝不影响产生事件的组件。
// 投递语义是"每次派发至多一次"，不保证送达。
//
// [NewHandler] 提供 slog 桥接：达到阈值的日志记录自动转为告警事件，
// 业务代码无需显式调用 Emit。
package xalert
