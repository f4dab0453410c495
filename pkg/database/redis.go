package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"homedrive-go/internal/config"
)

// NewRedis 创建 Redis 客户端并测试连接。未配置地址时返回 nil，调用方应回退到进程内实现。
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
