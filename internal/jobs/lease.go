package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"homedrive-go/pkg/log"
)

// Lease 是一个带过期时间的互斥租约，用来保证同一时刻只有一个 worker 在认领任务。
// Acquire 拿不到租约时返回 ok=false，不阻塞。
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// NewLease 配置了 Redis 时使用跨进程的 Redis 租约，否则使用进程内互斥。
func NewLease(rdb *redis.Client) Lease {
	if rdb == nil {
		return &localLease{held: make(map[string]time.Time)}
	}
	return &redisLease{rdb: rdb}
}

type localLease struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func (l *localLease) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if exp, ok := l.held[key]; ok && time.Now().Before(exp) {
		return nil, false, nil
	}
	l.held[key] = time.Now().Add(ttl)
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

type redisLease struct {
	rdb *redis.Client
}

// 只有持有者才能释放租约
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *redisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, "lease:"+key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		// 使用独立的 context，调用方的 ctx 可能已经取消
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{"lease:" + key}, token).Err(); err != nil && err != redis.Nil {
			log.Warnw("[Jobs] 释放租约失败", "key", key, "error", err)
		}
	}, true, nil
}
