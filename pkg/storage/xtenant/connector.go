package xtenant

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Conn 被纳管连接的最小接口。
type Conn interface {
	// Ping 探活。
	Ping(ctx context.Context) error

	// Close 关闭底层连接。
	Close(ctx context.Context) error
}

// Connector 按租户建立连接的端口。
// 实现必须并发安全；Connect 应尊重 ctx 的超时与取消。
type Connector[C Conn] interface {
	Connect(ctx context.Context, tenant string) (C, error)
}

// ConnectorFunc 函数适配器。
type ConnectorFunc[C Conn] func(ctx context.Context, tenant string) (C, error)

// Connect 实现 [Connector] 接口。
func (f ConnectorFunc[C]) Connect(ctx context.Context, tenant string) (C, error) {
	return f(ctx, tenant)
}

// =============================================================================
// Redis 连接
// =============================================================================

// RedisConn 包装 redis 客户端为 [Conn]。
type RedisConn struct {
	client redis.UniversalClient
}

// Client 返回底层 redis 客户端。
func (c *RedisConn) Client() redis.UniversalClient { return c.client }

// Ping 探活。
func (c *RedisConn) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// Close 关闭连接池。
func (c *RedisConn) Close(context.Context) error { return c.client.Close() }

// NewRedisConnector 创建 Redis 连接器。
// optionsFor 按租户产出连接参数（如独立 DB 序号或独立实例地址）。
// 建连后以 PING 验证可达性，失败时连接被关闭、不会发放。
func NewRedisConnector(optionsFor func(tenant string) *redis.Options) Connector[*RedisConn] {
	return ConnectorFunc[*RedisConn](func(ctx context.Context, tenant string) (*RedisConn, error) {
		client := redis.NewClient(optionsFor(tenant))
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis tenant %q: %w", tenant, err)
		}
		return &RedisConn{client: client}, nil
	})
}

// =============================================================================
// MongoDB 连接
// =============================================================================

// MongoConn 包装 mongo 客户端为 [Conn]。
type MongoConn struct {
	client *mongo.Client
}

// Client 返回底层 mongo 客户端。
func (c *MongoConn) Client() *mongo.Client { return c.client }

// Ping 探活。
func (c *MongoConn) Ping(ctx context.Context) error { return c.client.Ping(ctx, nil) }

// Close 断开连接。
func (c *MongoConn) Close(ctx context.Context) error { return c.client.Disconnect(ctx) }

// NewMongoConnector 创建 MongoDB 连接器。
// optionsFor 按租户产出客户端配置（通常是独立的 URI 或数据库）。
// mongo 客户端是惰性建连的，这里以 Ping 强制建连，确保 Acquire
// 返回的连接立即可用。
func NewMongoConnector(optionsFor func(tenant string) *mongoopts.ClientOptions) Connector[*MongoConn] {
	return ConnectorFunc[*MongoConn](func(ctx context.Context, tenant string) (*MongoConn, error) {
		client, err := mongo.Connect(optionsFor(tenant))
		if err != nil {
			return nil, fmt.Errorf("mongo tenant %q: %w", tenant, err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("mongo tenant %q: %w", tenant, err)
		}
		return &MongoConn{client: client}, nil
	})
}

var (
	_ Conn = (*RedisConn)(nil)
	_ Conn = (*MongoConn)(nil)
)
