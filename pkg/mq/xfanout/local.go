package xfanout

import (
	"context"
	"sync/atomic"
)

// localPubSub 进程内发布订阅。
type localPubSub struct {
	opts   *options
	table  *subscriberTable
	closed atomic.Bool
}

var _ PubSub = (*localPubSub)(nil)

// NewLocal 创建进程内发布订阅。
func NewLocal(opts ...Option) PubSub {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &localPubSub{opts: o, table: newSubscriberTable()}
}

// Publish 实现 [PubSub] 接口。
func (p *localPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := validateChannel(channel); err != nil {
		return err
	}
	p.table.deliver(channel, payload)
	return nil
}

// Subscribe 实现 [PubSub] 接口。
func (p *localPubSub) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	if err := validateChannel(channel); err != nil {
		return nil, err
	}

	s := &Subscription{
		channel: channel,
		ch:      make(chan Message, p.opts.bufferSize),
	}
	s.cancel = func(sub *Subscription) { p.table.remove(sub) }
	p.table.add(s)
	return s, nil
}

// Close 实现 [PubSub] 接口。
func (p *localPubSub) Close(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	p.table.drain()
	return nil
}
