// Package xcap 按配置装配基础设施能力束。
//
// 每项能力（配额、任务队列、分布式锁、定时调度、告警、扇出、缓存）都有
// 分布式与本地两种实现；xcap 读取配置为每项能力构造恰好一个实现，
// 统一放进 [Bundle]。选择分布式后端但缺少 redis 地址是配置错误，
// Build 会快速失败，绝不静默降级。
//
// 用法：
//
//	cfg := xcap.DefaultConfig()
//	cfg.Jobs.Backend = xcap.BackendDistributed
//	cfg.Redis.Addr = "localhost:6379"
//
//	bundle, err := xcap.Build(cfg)
//	if err != nil {
//	    return err
//	}
//	defer bundle.Close(context.Background())
//	go bundle.Run(ctx)
//
// 配置通常由 xconf 加载后 Unmarshal 到 [Config]。
package xcap
