package xalert

import (
	"context"
	"log/slog"
	"time"
)

// severityFromLevel 将 slog 级别映射到告警级别。
// slog 没有原生的 critical 级别，Error 以上（level > slog.LevelError）视为 critical。
func severityFromLevel(level slog.Level) Severity {
	switch {
	case level > slog.LevelError:
		return SeverityCritical
	case level >= slog.LevelError:
		return SeverityError
	case level >= slog.LevelWarn:
		return SeverityWarn
	default:
		return SeverityInfo
	}
}

// Handler 是 slog.Handler 装饰器：日志记录先转为告警事件投递到
// Dispatcher（经其阈值过滤），再交给内层 handler 正常输出。
//
// 这样错误日志天然成为告警事件流的生产者，业务代码不需要同时
// 写日志又调 Emit。
type Handler struct {
	inner slog.Handler
	d     *Dispatcher
	attrs []slog.Attr
	group string
}

// NewHandler 创建告警桥接 handler。
//
// 用法：
//
//	logger := slog.New(xalert.NewHandler(slog.NewJSONHandler(os.Stderr, nil), dispatcher))
func NewHandler(inner slog.Handler, d *Dispatcher) *Handler {
	return &Handler{inner: inner, d: d}
}

// Enabled 委托给内层 handler。
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle 投递告警事件并转发日志记录。
// Emit 非阻塞且自行吞掉所有失败，日志路径不受告警影响。
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	sev := severityFromLevel(r.Level)
	if sev >= h.d.threshold {
		fields := make(map[string]any, r.NumAttrs()+len(h.attrs))
		for _, a := range h.attrs {
			fields[a.Key] = a.Value.Any()
		}
		r.Attrs(func(a slog.Attr) bool {
			fields[h.fieldKey(a.Key)] = a.Value.Any()
			return true
		})

		ts := r.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		h.d.Emit(Event{
			Severity:  sev,
			Message:   r.Message,
			Fields:    fields,
			Timestamp: ts,
		})
	}

	return h.inner.Handle(ctx, r)
}

// WithAttrs 返回带附加属性的派生 handler。
// 属性 key 在此时按当前分组前缀固化。
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		merged = append(merged, slog.Attr{Key: h.fieldKey(a.Key), Value: a.Value})
	}
	return &Handler{
		inner: h.inner.WithAttrs(attrs),
		d:     h.d,
		attrs: merged,
		group: h.group,
	}
}

// WithGroup 返回带分组的派生 handler。
// 事件字段以 "group.key" 扁平化记录。
func (h *Handler) WithGroup(name string) slog.Handler {
	prefix := name
	if h.group != "" {
		prefix = h.group + "." + name
	}
	return &Handler{
		inner: h.inner.WithGroup(name),
		d:     h.d,
		attrs: h.attrs,
		group: prefix,
	}
}

func (h *Handler) fieldKey(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

var _ slog.Handler = (*Handler)(nil)
