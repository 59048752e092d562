package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares windows between vault replicas through Redis. Each
// window is one key that expires shortly after the minute ends.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now}
}

func windowKey(endpoint, ip string, at time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", endpoint, ip, at.Unix()/60)
}

func (l *RedisLimiter) Admit(ctx context.Context, ip, endpoint string) (int64, error) {
	key := windowKey(endpoint, ip, l.now())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
