// Package xrun 提供多个长驻服务的并发运行与协调关闭。
//
// [Group] 把若干 func(ctx) error 形式的服务跑在一个 errgroup 里：
// 任一服务出错或外层 ctx 取消时，其余服务通过 ctx 收到取消信号，
// Wait 返回第一个真实错误。
//
// 用法：
//
//	g, ctx := xrun.NewGroup(ctx)
//	g.GoWithName("alert-dispatcher", dispatcher.Run)
//	g.GoWithName("registry-sweep", registry.Run)
//	g.Go(xrun.Signals())
//	if err := g.Wait(); err != nil && !errors.Is(err, xrun.ErrSignal) {
//	    return err
//	}
//
// [Ticker] 把周期性动作包装成服务函数，供清扫循环这类任务使用。
package xrun
