package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenBlacklist 记录已注销的 token，直到它们自然过期。
type TokenBlacklist interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
}

// NewTokenBlacklist 配置了 Redis 时使用 Redis，否则使用进程内实现。
func NewTokenBlacklist(redisClient *redis.Client) TokenBlacklist {
	if redisClient == nil {
		return &memoryBlacklist{entries: make(map[string]time.Time), now: time.Now}
	}
	return &redisBlacklist{redisClient: redisClient}
}

type redisBlacklist struct {
	redisClient *redis.Client
}

func blacklistKey(token string) string {
	return "blacklist:" + token
}

func (r *redisBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if err := r.redisClient.Set(ctx, blacklistKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

func (r *redisBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := r.redisClient.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return n > 0, nil
}

type memoryBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func (m *memoryBlacklist) Add(_ context.Context, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, k)
		}
	}
	m.entries[token] = now.Add(ttl)
	return nil
}

func (m *memoryBlacklist) Contains(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[token]
	if !ok {
		return false, nil
	}
	if !m.now().Before(exp) {
		delete(m.entries, token)
		return false, nil
	}
	return true, nil
}
