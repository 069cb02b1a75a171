package xfanout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// redisPubSub Redis Pub/Sub 中继实现。
//
// 发布直接走 redis PUBLISH；本节点只维护一条 redis 订阅连接，
// 订阅集合为本地订阅者关注频道的并集，收到的消息经订阅表扇出。
type redisPubSub struct {
	client redis.UniversalClient
	opts   *options
	table  *subscriberTable
	closed atomic.Bool

	mu        sync.Mutex // 保护 ps 的生命周期与订阅集合变更
	ps        *redis.PubSub
	relayDone chan struct{}
}

var _ PubSub = (*redisPubSub)(nil)

// NewRedis 创建 Redis Pub/Sub 中继。
func NewRedis(client redis.UniversalClient, opts ...Option) (PubSub, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &redisPubSub{client: client, opts: o, table: newSubscriberTable()}, nil
}

// Publish 实现 [PubSub] 接口。
func (p *redisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := validateChannel(channel); err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.opts.channelPrefix+channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return nil
}

// Subscribe 实现 [PubSub] 接口。
func (p *redisPubSub) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	if err := validateChannel(channel); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return nil, ErrClosed
	}

	if p.ps == nil {
		// 中继连接生命周期独立于单次 Subscribe 的 ctx。
		p.ps = p.client.Subscribe(context.WithoutCancel(ctx))
		p.relayDone = make(chan struct{})
		go p.relay(p.ps, p.relayDone)
	}

	s := &Subscription{
		channel: channel,
		ch:      make(chan Message, p.opts.bufferSize),
	}
	s.cancel = p.unsubscribe

	if p.table.add(s) == 1 {
		if err := p.ps.Subscribe(ctx, p.opts.channelPrefix+channel); err != nil {
			p.table.remove(s)
			return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}
	}
	return s, nil
}

// unsubscribe 注销本地订阅者；频道最后一个订阅者离开时
// 同步收缩 redis 订阅集合。
func (p *redisPubSub) unsubscribe(s *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.table.remove(s) == 0 && p.ps != nil && !p.closed.Load() {
		if err := p.ps.Unsubscribe(context.Background(), p.opts.channelPrefix+s.channel); err != nil {
			p.opts.logger.Warn("failed to trim redis subscription",
				slog.String("channel", s.channel), slog.String("error", err.Error()))
		}
	}
}

// relay 把 redis 订阅收到的消息扇出给本地订阅者。
func (p *redisPubSub) relay(ps *redis.PubSub, done chan struct{}) {
	defer close(done)
	for msg := range ps.Channel() {
		channel := strings.TrimPrefix(msg.Channel, p.opts.channelPrefix)
		p.table.deliver(channel, []byte(msg.Payload))
	}
}

// Close 实现 [PubSub] 接口。
func (p *redisPubSub) Close(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}

	p.mu.Lock()
	ps, done := p.ps, p.relayDone
	p.ps, p.relayDone = nil, nil
	p.mu.Unlock()

	if ps != nil {
		if err := ps.Close(); err != nil {
			p.opts.logger.Warn("failed to close redis subscription", slog.String("error", err.Error()))
		}
		<-done
	}
	p.table.drain()
	return nil
}
