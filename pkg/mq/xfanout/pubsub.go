package xfanout

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// Message 一条扇出消息。
type Message struct {
	Channel string
	Payload []byte
}

// PubSub 发布订阅接口。所有方法并发安全。
type PubSub interface {
	// Publish 向频道发布消息。没有订阅者时是成功的空操作。
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe 订阅频道。返回的 Subscription 用完必须 Close。
	Subscribe(ctx context.Context, channel string) (*Subscription, error)

	// Close 关闭并回收所有订阅。
	Close(ctx context.Context) error
}

// Subscription 一个频道订阅。
type Subscription struct {
	channel string
	ch      chan Message
	dropped atomic.Int64
	once    sync.Once
	cancel  func(s *Subscription)
}

// C 返回接收通道。订阅关闭后通道被关闭。
func (s *Subscription) C() <-chan Message { return s.ch }

// Channel 返回订阅的频道名。
func (s *Subscription) Channel() string { return s.channel }

// Dropped 返回因缓冲满而丢弃的消息数。
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close 取消订阅并关闭接收通道。幂等。
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel(s)
		}
		close(s.ch)
	})
}

// Option 配置选项。
type Option func(*options)

type options struct {
	bufferSize    int
	channelPrefix string
	logger        *slog.Logger
}

func defaultOptions() *options {
	return &options{
		bufferSize:    64,
		channelPrefix: "apexps:",
		logger:        slog.Default(),
	}
}

// WithBufferSize 设置每个订阅者的缓冲大小。默认 64。
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithChannelPrefix 设置分布式实现的 redis 频道前缀，用于多套部署
// 共用一个 redis 时的命名空间隔离。默认 "apexps:"。
func WithChannelPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.channelPrefix = prefix
		}
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

func validateChannel(channel string) error {
	if strings.TrimSpace(channel) == "" {
		return ErrEmptyChannel
	}
	return nil
}

// subscriberTable 频道到订阅者集合的映射，本地实现与 redis 中继共用。
type subscriberTable struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func newSubscriberTable() *subscriberTable {
	return &subscriberTable{subs: make(map[string]map[*Subscription]struct{})}
}

// add 登记订阅者，返回该频道登记后的订阅者数量。
func (t *subscriberTable) add(s *Subscription) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.subs[s.channel]
	if !ok {
		set = make(map[*Subscription]struct{})
		t.subs[s.channel] = set
	}
	set[s] = struct{}{}
	return len(set)
}

// remove 注销订阅者，返回该频道剩余的订阅者数量。
func (t *subscriberTable) remove(s *Subscription) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.subs[s.channel]
	if !ok {
		return 0
	}
	delete(set, s)
	if len(set) == 0 {
		delete(t.subs, s.channel)
		return 0
	}
	return len(set)
}

// deliver 把消息投递给频道的所有订阅者。
// 缓冲满的订阅者丢弃这条消息，不阻塞其他订阅者。
func (t *subscriberTable) deliver(channel string, payload []byte) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for s := range t.subs[channel] {
		select {
		case s.ch <- Message{Channel: channel, Payload: payload}:
		default:
			s.dropped.Add(1)
		}
	}
}

// drain 注销并关闭所有订阅者。
func (t *subscriberTable) drain() {
	t.mu.Lock()
	var all []*Subscription
	for _, set := range t.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	t.subs = make(map[string]map[*Subscription]struct{})
	t.mu.Unlock()

	for _, s := range all {
		// 订阅表已整体清空，remove 变为空操作，这里只需关闭通道。
		s.once.Do(func() { close(s.ch) })
	}
}
