package xsched

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/omeyang/apexkit/pkg/distributed/xlock"
)

// jobWrapper 包装任务，叠加抢锁、续期、超时与 panic 恢复。
// 实现 cron.Job 接口。
type jobWrapper struct {
	job    Job
	opts   *jobOptions
	locker xlock.Locker
	logger *slog.Logger
	stats  *Stats
}

// Run 实现 cron.Job 接口。
func (w *jobWrapper) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if w.opts.name != "" && w.locker != nil {
		handle, err := w.locker.TryAcquire(ctx, w.opts.name, w.opts.lockTTL)
		if err != nil {
			w.logger.Warn("failed to acquire job lock",
				slog.String("job", w.opts.name),
				slog.String("error", err.Error()))
			w.stats.recordSkip(w.opts.name)
			return
		}
		if handle == nil {
			// 其他副本持有锁，本次触发跳过。
			w.stats.recordSkip(w.opts.name)
			return
		}

		stopRenew := w.startRenew(cancel, handle)
		defer func() {
			stopRenew()
			unlockCtx, unlockCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer unlockCancel()
			if err := handle.Unlock(unlockCtx); err != nil {
				w.logger.Warn("failed to release job lock",
					slog.String("job", w.opts.name),
					slog.String("error", err.Error()))
			}
		}()
	}

	if w.opts.timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, w.opts.timeout)
		defer timeoutCancel()
	}

	start := time.Now()
	err := w.execute(ctx)
	w.stats.recordRun(w.opts.name, time.Since(start), err)

	if err != nil {
		w.logger.Error("job failed",
			slog.String("job", w.opts.name),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
	}
}

// execute 运行任务并把 panic 转为错误。
func (w *jobWrapper) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("xsched: job panicked: %v", r)
		}
	}()
	return w.job.Run(ctx)
}

// startRenew 启动锁续期协程，周期为 TTL 的 1/3。
// 续期失败时取消任务上下文，防止锁过期后与其他副本并发执行。
func (w *jobWrapper) startRenew(taskCancel context.CancelFunc, handle xlock.Handle) func() {
	interval := w.opts.lockTTL / 3
	if interval < time.Second {
		interval = time.Second
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				if err := handle.Renew(renewCtx); err != nil {
					w.logger.Error("lock renewal failed, canceling job",
						slog.String("job", w.opts.name),
						slog.String("error", err.Error()))
					taskCancel()
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
