// Package xsched 提供带分布式互斥的定时任务调度。
//
// 基于 robfig/cron/v3，每次触发前通过 [xlock.Locker] 以任务名抢锁：
// 抢到的副本执行本次任务，其余副本静默跳过。锁在任务结束后释放，
// 长任务期间自动续期。
//
// 用法：
//
//	sched := xsched.New(locker)
//	_, err := sched.AddFunc("*/5 * * * *", cleanup,
//	    xsched.WithName("cleanup"),
//	    xsched.WithTimeout(time.Minute),
//	)
//	sched.Start()
//	defer func() { <-sched.Stop().Done() }()
//
// 单实例部署传入 xlock.NewLocal() 即可，调度器不感知锁的实现。
// 未命名的任务不参与抢锁，会在每个副本上执行。
package xsched
