// Package xjob 提供带状态跟踪的后台任务队列。
//
// 两种实现共享同一个 [Queue] 接口：
//   - [NewLocal]: 进程内有界队列，状态存于带保留期的 LRU。
//     进程重启后任务丢失，适用于单实例部署或降级运行。
//   - [NewRedis]: Redis Streams 消费组实现，至少一次投递。
//     超过可见性超时未确认的任务会被重新投递，消费方需按任务 ID 去重。
//
// 投递语义：
//
//	delivery, err := q.Dequeue(ctx)   // 阻塞直到有任务或 ctx 取消
//	err = handler(delivery.Job)
//	if err != nil {
//	    delivery.Fail(ctx, err, true) // 可重试：指数退避后重新入队
//	} else {
//	    delivery.Ack(ctx)
//	}
//
// 可重试失败在尝试次数达到上限后转为终态 Failed，并通过注入的
// [Alerter] 发出恰好一条告警事件。
package xjob
