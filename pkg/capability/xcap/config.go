package xcap

import (
	"fmt"
	"time"

	"github.com/omeyang/apexkit/pkg/observability/xalert"
	"github.com/omeyang/apexkit/pkg/resilience/xquota"
)

// Backend 能力的后端形态。
type Backend string

const (
	// BackendLocal 进程内实现，单实例部署或降级运行。
	BackendLocal Backend = "local"
	// BackendDistributed Redis 实现，跨实例一致。
	BackendDistributed Backend = "distributed"
)

func (b Backend) valid() bool {
	return b == BackendLocal || b == BackendDistributed
}

// RedisConfig 共享的 redis 连接参数。
type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Username     string        `koanf:"username"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// QuotaConfig 限流能力配置。
type QuotaConfig struct {
	Backend Backend `koanf:"backend"`
	// Policy 分布式后端故障时的策略：open、closed 或 local。
	Policy string `koanf:"policy"`
}

// JobsConfig 任务队列能力配置。
type JobsConfig struct {
	Backend Backend `koanf:"backend"`
	// Queue 队列名，区分共用 redis 的不同业务队列。
	Queue             string        `koanf:"queue"`
	Capacity          int           `koanf:"capacity"`
	MaxAttempts       int           `koanf:"max_attempts"`
	VisibilityTimeout time.Duration `koanf:"visibility_timeout"`
	StatusRetention   time.Duration `koanf:"status_retention"`
}

// LockConfig 分布式锁能力配置。
type LockConfig struct {
	Backend Backend `koanf:"backend"`
}

// SchedConfig 定时调度能力配置。调度器复用锁能力的后端。
type SchedConfig struct {
	// DefaultLockTTL 任务抢锁的默认 TTL。
	DefaultLockTTL time.Duration `koanf:"default_lock_ttl"`
	// Seconds 启用秒级精度的 cron 表达式。
	Seconds bool `koanf:"seconds"`
}

// AlertConfig 告警能力配置。
type AlertConfig struct {
	// Threshold 告警阈值：info、warn、error 或 critical。
	Threshold string `koanf:"threshold"`
	// WebhookURL 告警投递地址，为空时告警仅写日志。
	WebhookURL string `koanf:"webhook_url"`
	BufferSize int    `koanf:"buffer_size"`
	// DropPolicy 缓冲满时的丢弃策略：oldest 或 newest。
	DropPolicy string `koanf:"drop_policy"`
}

// FanoutConfig 发布订阅扇出能力配置。
type FanoutConfig struct {
	Backend    Backend `koanf:"backend"`
	BufferSize int     `koanf:"buffer_size"`
}

// CacheConfig 缓存能力配置。
type CacheConfig struct {
	Backend Backend `koanf:"backend"`
	// MaxCost 本地后端的最大容量（字节），分布式后端忽略。
	MaxCost int64 `koanf:"max_cost"`
}

// Config 能力束配置。零值不可用，请从 [DefaultConfig] 出发修改。
type Config struct {
	Redis  RedisConfig  `koanf:"redis"`
	Quota  QuotaConfig  `koanf:"quota"`
	Jobs   JobsConfig   `koanf:"jobs"`
	Lock   LockConfig   `koanf:"lock"`
	Sched  SchedConfig  `koanf:"sched"`
	Alerts AlertConfig  `koanf:"alerts"`
	Fanout FanoutConfig `koanf:"fanout"`
	Cache  CacheConfig  `koanf:"cache"`
}

// DefaultConfig 返回全本地后端的默认配置。
func DefaultConfig() Config {
	return Config{
		Redis: RedisConfig{
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Quota: QuotaConfig{Backend: BackendLocal, Policy: string(xquota.PolicyOpen)},
		Jobs: JobsConfig{
			Backend:           BackendLocal,
			Queue:             "default",
			Capacity:          1024,
			MaxAttempts:       3,
			VisibilityTimeout: 30 * time.Second,
			StatusRetention:   time.Hour,
		},
		Lock:  LockConfig{Backend: BackendLocal},
		Sched: SchedConfig{DefaultLockTTL: time.Minute},
		Alerts: AlertConfig{
			Threshold:  xalert.SeverityCritical.String(),
			BufferSize: 256,
			DropPolicy: string(xalert.DropOldest),
		},
		Fanout: FanoutConfig{Backend: BackendLocal, BufferSize: 64},
		Cache:  CacheConfig{Backend: BackendLocal},
	}
}

// Validate 校验配置。分布式后端必须配 redis 地址。
func (c *Config) Validate() error {
	for name, b := range map[string]Backend{
		"quota":  c.Quota.Backend,
		"jobs":   c.Jobs.Backend,
		"lock":   c.Lock.Backend,
		"fanout": c.Fanout.Backend,
		"cache":  c.Cache.Backend,
	} {
		if !b.valid() {
			return fmt.Errorf("%w: %s.backend must be %q or %q, got %q",
				ErrConfig, name, BackendLocal, BackendDistributed, b)
		}
		if b == BackendDistributed && c.Redis.Addr == "" {
			return fmt.Errorf("%w: %s.backend is distributed but redis.addr is empty", ErrConfig, name)
		}
	}

	switch xquota.Policy(c.Quota.Policy) {
	case xquota.PolicyOpen, xquota.PolicyClosed, xquota.PolicyLocal:
	default:
		return fmt.Errorf("%w: quota.policy must be open, closed or local, got %q", ErrConfig, c.Quota.Policy)
	}

	if c.Jobs.Backend == BackendDistributed && c.Jobs.Queue == "" {
		return fmt.Errorf("%w: jobs.queue is empty", ErrConfig)
	}

	if _, err := xalert.ParseSeverity(c.Alerts.Threshold); err != nil {
		return fmt.Errorf("%w: alerts.threshold: %q", ErrConfig, c.Alerts.Threshold)
	}
	switch xalert.DropPolicy(c.Alerts.DropPolicy) {
	case xalert.DropOldest, xalert.DropNewest:
	default:
		return fmt.Errorf("%w: alerts.drop_policy must be oldest or newest, got %q", ErrConfig, c.Alerts.DropPolicy)
	}

	return nil
}

// anyDistributed 报告是否有能力选择了分布式后端。
func (c *Config) anyDistributed() bool {
	return c.Quota.Backend == BackendDistributed ||
		c.Jobs.Backend == BackendDistributed ||
		c.Lock.Backend == BackendDistributed ||
		c.Fanout.Backend == BackendDistributed ||
		c.Cache.Backend == BackendDistributed
}
