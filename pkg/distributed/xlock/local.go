package xlock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// defaultShardCount 默认分片数，必须是 2 的幂。
const defaultShardCount = 16

// localLocker 进程内锁表实现。
//
// 单副本部署时分布式锁退化为进程内互斥：没有跨进程竞争，
// 但 TTL 过期和 fencing token 语义与分布式后端保持一致，
// 调用方无需感知差异。
type localLocker struct {
	shards []localShard
	mask   uint64
	fence  atomic.Int64
	closed atomic.Bool
}

type localShard struct {
	mu      sync.Mutex
	records map[string]*localRecord
}

// localRecord 一条锁记录。
// 同一资源名任意时刻至多存在一条未过期记录（由分片锁保证）。
type localRecord struct {
	holder  string
	expires time.Time
	ttl     time.Duration
	token   int64
}

// NewLocal 创建进程内 Locker。
func NewLocal() Locker {
	shards := make([]localShard, defaultShardCount)
	for i := range shards {
		shards[i].records = make(map[string]*localRecord)
	}
	return &localLocker{
		shards: shards,
		mask:   defaultShardCount - 1,
	}
}

func (l *localLocker) getShard(name string) *localShard {
	h := xxhash.Sum64String(name)
	return &l.shards[h&l.mask]
}

func (l *localLocker) TryAcquire(_ context.Context, name string, ttl time.Duration) (Handle, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateTTL(ttl); err != nil {
		return nil, err
	}

	s := l.getShard(name)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if rec, ok := s.records[name]; ok && now.Before(rec.expires) {
		return nil, nil // 锁被占用
	}

	rec := &localRecord{
		holder:  uuid.NewString(),
		expires: now.Add(ttl),
		ttl:     ttl,
		token:   l.fence.Add(1),
	}
	s.records[name] = rec

	return &localHandle{locker: l, name: name, holder: rec.holder, token: rec.token}, nil
}

func (l *localLocker) Holder(_ context.Context, name string) (string, error) {
	if l.closed.Load() {
		return "", ErrClosed
	}
	if err := validateName(name); err != nil {
		return "", err
	}

	s := l.getShard(name)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[name]
	if !ok || !time.Now().Before(rec.expires) {
		return "", nil
	}
	return rec.holder, nil
}

func (l *localLocker) Health(context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (l *localLocker) Close(context.Context) error {
	if l.closed.Swap(true) {
		return nil
	}
	return nil
}

// localHandle 实现 Handle 接口。
type localHandle struct {
	locker *localLocker
	name   string
	holder string
	token  int64
}

// Unlock 释放锁。
// 锁已过期或被其他获取覆盖时返回 [ErrNotHeld]。
// 允许在 Locker 关闭后释放，避免记录残留到 TTL 到期。
func (h *localHandle) Unlock(context.Context) error {
	s := h.locker.getShard(h.name)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[h.name]
	if !ok || rec.holder != h.holder || !time.Now().Before(rec.expires) {
		return ErrNotHeld
	}
	delete(s.records, h.name)
	return nil
}

// Renew 续期锁，续期时长为获取时的 ttl。
func (h *localHandle) Renew(context.Context) error {
	s := h.locker.getShard(h.name)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[h.name]
	if !ok || rec.holder != h.holder || !time.Now().Before(rec.expires) {
		return ErrNotHeld
	}
	rec.expires = time.Now().Add(rec.ttl)
	return nil
}

func (h *localHandle) Name() string { return h.name }

func (h *localHandle) Token() int64 { return h.token }

var (
	_ Locker = (*localLocker)(nil)
	_ Handle = (*localHandle)(nil)
)
