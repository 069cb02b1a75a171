package xlock

import (
	"context"
	"strings"
	"time"
)

// maxNameLength 资源名长度上限（字节）。
const maxNameLength = 512

// Handle 表示一次成功的锁获取。
//
// 每次 TryAcquire 成功都会返回一个新的 handle，内部封装了唯一标识和
// fencing token。通过 handle 进行 Unlock 和 Renew，确保不同获取之间
// 不会互相干扰。
//
// # 使用模式
//
//	handle, err := locker.TryAcquire(ctx, "daily-report", 30*time.Second)
//	if err != nil {
//	    return err // 锁服务异常
//	}
//	if handle == nil {
//	    return nil // 被其他进程持有，跳过执行
//	}
//	defer handle.Unlock(ctx)
//
//	writeExternal(ctx, data, handle.Token()) // 外部写操作携带 fencing token
type Handle interface {
	// Unlock 释放锁。
	// 只释放本次获取的锁。锁已过期或被其他获取覆盖时返回 [ErrNotHeld]。
	Unlock(ctx context.Context) error

	// Renew 续期锁。
	//
	// 续期时长使用获取锁时的 ttl；锁已失去时返回 [ErrNotHeld]，
	// 此后不应再执行受锁保护的写操作。
	Renew(ctx context.Context) error

	// Name 返回锁的资源名。
	Name() string

	// Token 返回本次获取的 fencing token。
	//
	// token 对同一资源名单调递增。受锁保护的外部状态变更应校验 token，
	// 拒绝来自更早（可能已过期）持有者的写入。
	Token() int64
}

// Locker 互斥锁提供方接口。
//
// # 实现要求
//
//   - TryAcquire 必须是非阻塞的：立即返回成功或失败，不等待锁释放
//   - 每次成功获取必须返回独立的 Handle 和严格递增的 fencing token
//   - 锁必须有 TTL，持有者崩溃后锁在 TTL 内自动失效
//   - 实现必须是并发安全的
type Locker interface {
	// TryAcquire 尝试获取锁（非阻塞）。
	//
	// 返回：
	//   - handle: 成功时返回 Handle，锁被其他持有者占用时返回 nil
	//   - err: 参数非法或锁服务异常（如 Redis 不可用）
	//
	// handle=nil 且 err=nil 表示锁被其他进程持有，这是正常的竞争结果。
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (Handle, error)

	// Holder 返回资源当前持有者的标识，用于运维排查。
	//
	// 锁未被持有（或已过期）时返回空串。持有者标识是获取时生成的
	// 不透明值，只用于观测，不能用来代替 fencing token 做写入校验。
	Holder(ctx context.Context, name string) (string, error)

	// Health 健康检查。本地后端恒返回 nil。
	Health(ctx context.Context) error

	// Close 关闭 Locker。关闭后 TryAcquire 返回 [ErrClosed]。
	// 不关闭注入的外部客户端。
	Close(ctx context.Context) error
}

// validateName 校验资源名。
func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
