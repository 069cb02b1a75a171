package xrun

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// Option Group 配置选项。
type Option func(*options)

type options struct {
	name   string
	logger *slog.Logger
}

func defaultOptions() *options {
	return &options{logger: slog.Default()}
}

// WithName 设置组名，出现在服务生命周期日志中。
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger 设置日志器。默认 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Group 一组并发运行、同生共死的服务。
// Go 与 GoWithName 可并发调用；Wait 只应调用一次。
type Group struct {
	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelCauseFunc
	opts   *options
}

// NewGroup 创建服务组，返回组和派生的 ctx。
// 任一服务返回错误时 ctx 被取消。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	return &Group{eg: eg, ctx: egCtx, cancel: cancel, opts: o}, egCtx
}

// Go 启动一个服务。fn 应监听 ctx.Done() 响应取消。
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		return fn(g.ctx)
	})
}

// GoWithName 与 Go 相同，并记录服务的启停日志。
func (g *Group) GoWithName(name string, fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		g.opts.logger.Debug("service starting",
			slog.String("group", g.opts.name), slog.String("service", name))
		err := fn(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.opts.logger.Warn("service exited with error",
				slog.String("group", g.opts.name), slog.String("service", name),
				slog.String("error", err.Error()))
		} else {
			g.opts.logger.Debug("service stopped",
				slog.String("group", g.opts.name), slog.String("service", name))
		}
		return err
	})
}

// Cancel 主动取消整组服务，cause 作为退出原因。
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// Wait 等待所有服务退出，返回第一个真实错误。
// 取消原因（Cancel 设置的 cause 或信号错误）优先于 context.Canceled。
func (g *Group) Wait() error {
	err := g.eg.Wait()
	g.cancel(nil)
	if errors.Is(err, context.Canceled) {
		if cause := context.Cause(g.ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			return cause
		}
		return nil
	}
	return err
}

// Signals 返回一个监听系统信号的服务函数。
// 收到信号时返回 [SignalError]，带动整组退出。
// 不指定信号时默认监听 SIGINT 和 SIGTERM。
func Signals(signals ...os.Signal) func(ctx context.Context) error {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	return func(ctx context.Context) error {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, signals...)
		defer signal.Stop(ch)

		select {
		case sig := <-ch:
			return &SignalError{Signal: sig}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Ticker 把周期性动作包装成服务函数。
// immediate 为 true 时启动后立即执行一次；fn 返回错误即终止。
func Ticker(interval time.Duration, immediate bool, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if interval <= 0 {
			return ErrInvalidInterval
		}
		if fn == nil {
			return ErrNilFunc
		}

		if immediate {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx); err != nil {
				return err
			}
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					return err
				}
			}
		}
	}
}
