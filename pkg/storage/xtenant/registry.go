package xtenant

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/omeyang/apexkit/pkg/lifecycle/xrun"
)

// Option 注册表配置选项。
type Option func(*options)

type options struct {
	connectTimeout time.Duration
	idleTimeout    time.Duration
	sweepInterval  time.Duration
	maxResident    int
	shardCount     uint
	logger         *slog.Logger
}

func defaultOptions() *options {
	return &options{
		connectTimeout: 10 * time.Second,
		idleTimeout:    5 * time.Minute,
		sweepInterval:  30 * time.Second,
		maxResident:    0, // 不限制
		shardCount:     16,
		logger:         slog.Default(),
	}
}

// WithConnectTimeout 设置建连超时。默认 10s。
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithIdleTimeout 设置空闲回收阈值。默认 5m。
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleTimeout = d
		}
	}
}

// WithSweepInterval 设置清扫周期。默认 30s。
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// WithMaxResident 设置驻留连接数上限。0 表示不限制（默认）。
func WithMaxResident(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxResident = n
		}
	}
}

// WithShardCount 设置分片数，必须为 2 的幂。默认 16。
func WithShardCount(n uint) Option {
	return func(o *options) {
		o.shardCount = n
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

// entry 一个租户的连接条目。
// conn 和 err 在 ready 关闭前写入一次，此后只读；
// refs 和 lastUsed 由所属分片的锁保护。
type entry[C Conn] struct {
	tenant   string
	ready    chan struct{}
	conn     C
	err      error
	refs     int
	lastUsed time.Time
}

func (e *entry[C]) isReady() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

type shard[C Conn] struct {
	mu      sync.Mutex
	entries map[string]*entry[C]
}

// Registry 按租户管理连接的注册表。
// 所有方法并发安全。必须通过 [New] 创建。
type Registry[C Conn] struct {
	connector Connector[C]
	opts      *options
	shards    []shard[C]
	mask      uint64
	resident  atomic.Int64
	closed    atomic.Bool
}

// New 创建注册表。
func New[C Conn](connector Connector[C], opts ...Option) (*Registry[C], error) {
	if connector == nil {
		return nil, ErrNilConnector
	}

	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.shardCount == 0 || o.shardCount&(o.shardCount-1) != 0 {
		return nil, ErrInvalidShardCount
	}

	shards := make([]shard[C], o.shardCount)
	for i := range shards {
		shards[i].entries = make(map[string]*entry[C])
	}

	return &Registry[C]{
		connector: connector,
		opts:      o,
		shards:    shards,
		mask:      uint64(o.shardCount - 1),
	}, nil
}

func (r *Registry[C]) getShard(tenant string) *shard[C] {
	h := xxhash.Sum64String(tenant)
	return &r.shards[h&r.mask]
}

// Acquire 获取租户连接，不存在时建连（single-flight）。
//
// 并发的首次 Acquire 只有一个 goroutine 执行建连，其余等待共享结果。
// 建连受 ConnectTimeout 约束，失败返回 [ErrBackendUnavailable]。
// ctx 取消时返回 ctx.Err()，且不会留下半初始化的连接。
func (r *Registry[C]) Acquire(ctx context.Context, tenant string) (*Resource[C], error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrEmptyTenant
	}

	for {
		if r.closed.Load() {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s := r.getShard(tenant)
		s.mu.Lock()

		if e, ok := s.entries[tenant]; ok {
			s.mu.Unlock()
			res, retry, err := r.await(ctx, s, e)
			if retry {
				continue
			}
			return res, err
		}

		// 容量检查：达到上限时先尝试逐出一个空闲连接再重试，
		// 避免同时持有多把分片锁。
		if r.opts.maxResident > 0 && int(r.resident.Load()) >= r.opts.maxResident {
			s.mu.Unlock()
			if !r.evictOneIdle(ctx) {
				return nil, ErrCapacity
			}
			continue
		}

		e := &entry[C]{tenant: tenant, ready: make(chan struct{})}
		s.entries[tenant] = e
		r.resident.Add(1)
		s.mu.Unlock()

		return r.connect(ctx, s, e)
	}
}

// await 等待其他 goroutine 的建连结果。
// retry=true 表示条目在等待期间被移除（建连失败或已被逐出），需要重试。
func (r *Registry[C]) await(ctx context.Context, s *shard[C], e *entry[C]) (*Resource[C], bool, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}

	if e.err != nil {
		return nil, false, e.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[e.tenant]; !ok || cur != e {
		return nil, true, nil // 条目已被逐出，重走创建路径
	}
	e.refs++
	e.lastUsed = time.Now()
	return &Resource[C]{registry: r, shard: s, entry: e}, false, nil
}

// connect 执行建连（single-flight 的 owner 路径）。
func (r *Registry[C]) connect(ctx context.Context, s *shard[C], e *entry[C]) (*Resource[C], error) {
	// 建连使用独立的超时上下文：调用方中途取消不会留下
	// 半初始化的连接，等待中的其他 Acquire 也不会被殃及。
	dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.connectTimeout)
	conn, err := r.connector.Connect(dialCtx, e.tenant)
	cancel()

	if err != nil {
		e.err = fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		s.mu.Lock()
		// Close 可能已移除条目并扣减计数，避免二次扣减。
		if cur, ok := s.entries[e.tenant]; ok && cur == e {
			delete(s.entries, e.tenant)
			r.resident.Add(-1)
		}
		s.mu.Unlock()
		close(e.ready)
		return nil, e.err
	}

	e.conn = conn
	s.mu.Lock()
	if cur, ok := s.entries[e.tenant]; !ok || cur != e {
		// 建连期间注册表已关闭并移除了条目：连接不再托管，就地关闭。
		s.mu.Unlock()
		close(e.ready)
		r.closeConn(ctx, e)
		return nil, ErrClosed
	}
	e.refs = 1
	e.lastUsed = time.Now()
	s.mu.Unlock()
	close(e.ready)

	// 调用方已取消：连接完好保留在注册表中，归还引用后返回。
	if ctxErr := ctx.Err(); ctxErr != nil {
		r.releaseEntry(s, e)
		return nil, ctxErr
	}

	return &Resource[C]{registry: r, shard: s, entry: e}, nil
}

func (r *Registry[C]) releaseEntry(s *shard[C], e *entry[C]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.refs > 0 {
		e.refs--
	}
	e.lastUsed = time.Now()
}

// evictOneIdle 逐出最久空闲的零引用连接。
// 返回 false 表示没有可逐出的条目。
func (r *Registry[C]) evictOneIdle(ctx context.Context) bool {
	var (
		victim      *entry[C]
		victimShard *shard[C]
		victimLast  time.Time
	)

	// lastUsed 受各自分片锁保护，跨分片比较只能用持锁期间的快照。
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for _, e := range s.entries {
			if !e.isReady() || e.err != nil || e.refs != 0 {
				continue
			}
			if victim == nil || e.lastUsed.Before(victimLast) {
				victim = e
				victimShard = s
				victimLast = e.lastUsed
			}
		}
		s.mu.Unlock()
	}

	if victim == nil {
		return false
	}

	// 重新加锁后复核：候选可能在扫描间隙被重新引用。
	victimShard.mu.Lock()
	if cur, ok := victimShard.entries[victim.tenant]; !ok || cur != victim || victim.refs != 0 {
		victimShard.mu.Unlock()
		return false
	}
	delete(victimShard.entries, victim.tenant)
	r.resident.Add(-1)
	victimShard.mu.Unlock()

	r.closeConn(ctx, victim)
	return true
}

func (r *Registry[C]) closeConn(ctx context.Context, e *entry[C]) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.connectTimeout)
	defer cancel()
	if err := e.conn.Close(closeCtx); err != nil {
		r.opts.logger.Warn("failed to close tenant connection",
			slog.String("tenant", e.tenant),
			slog.String("error", err.Error()),
		)
	}
}

// Run 运行空闲清扫循环，直到 ctx 取消。
// 通常交由 xrun.Group 托管；不调用 Run 则不会发生空闲回收。
func (r *Registry[C]) Run(ctx context.Context) error {
	return xrun.Ticker(r.opts.sweepInterval, false, func(ctx context.Context) error {
		r.sweep(ctx)
		return nil
	})(ctx)
}

// sweep 回收空闲超过 IdleTimeout 的零引用连接。
func (r *Registry[C]) sweep(ctx context.Context) {
	deadline := time.Now().Add(-r.opts.idleTimeout)
	var victims []*entry[C]

	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for tenant, e := range s.entries {
			if e.isReady() && e.err == nil && e.refs == 0 && e.lastUsed.Before(deadline) {
				delete(s.entries, tenant)
				r.resident.Add(-1)
				victims = append(victims, e)
			}
		}
		s.mu.Unlock()
	}

	for _, e := range victims {
		r.closeConn(ctx, e)
	}
	if len(victims) > 0 {
		r.opts.logger.Debug("swept idle tenant connections", slog.Int("count", len(victims)))
	}
}

// Close 关闭注册表并释放所有连接。
// 仍被引用的连接也会被关闭，调用方应先停止使用再关闭。
func (r *Registry[C]) Close(ctx context.Context) error {
	if r.closed.Swap(true) {
		return nil
	}

	var victims []*entry[C]
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for tenant, e := range s.entries {
			if e.isReady() && e.err == nil {
				victims = append(victims, e)
			}
			delete(s.entries, tenant)
			r.resident.Add(-1)
		}
		s.mu.Unlock()
	}

	for _, e := range victims {
		r.closeConn(ctx, e)
	}
	return nil
}

// TenantStat 单个租户的状态。
type TenantStat struct {
	Tenant   string        `json:"tenant"`
	Refs     int           `json:"refs"`
	IdleFor  time.Duration `json:"idle_for"`
	Creating bool          `json:"creating,omitempty"`
}

// Stats 注册表状态快照。
type Stats struct {
	Resident int          `json:"resident"`
	Tenants  []TenantStat `json:"tenants"`
}

// Stats 返回状态快照，按租户名排序。用于健康检查和运维观测。
func (r *Registry[C]) Stats() Stats {
	var stats Stats
	now := time.Now()

	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for tenant, e := range s.entries {
			ts := TenantStat{Tenant: tenant, Refs: e.refs, Creating: !e.isReady()}
			if e.refs == 0 && e.isReady() {
				ts.IdleFor = now.Sub(e.lastUsed)
			}
			stats.Tenants = append(stats.Tenants, ts)
		}
		s.mu.Unlock()
	}

	stats.Resident = int(r.resident.Load())
	sort.Slice(stats.Tenants, func(i, j int) bool {
		return stats.Tenants[i].Tenant < stats.Tenants[j].Tenant
	})
	return stats
}

// Resource 一次成功的 Acquire。
// 使用完毕必须调用 Release；Release 幂等，重复调用无效果。
type Resource[C Conn] struct {
	registry *Registry[C]
	shard    *shard[C]
	entry    *entry[C]
	released atomic.Bool
}

// Conn 返回底层连接。
func (res *Resource[C]) Conn() C { return res.entry.conn }

// Tenant 返回租户 key。
func (res *Resource[C]) Tenant() string { return res.entry.tenant }

// Release 归还引用。引用计数归零后连接进入空闲，等待清扫回收。
func (res *Resource[C]) Release() {
	if res.released.Swap(true) {
		return
	}
	res.registry.releaseEntry(res.shard, res.entry)
}
