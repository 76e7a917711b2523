package pipeline

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisWindowPrefix = "ratelimit:"

// RedisWindows is a WindowStore backed by Redis, for deployments where
// several processes must share one rate-window table. Keys expire with the
// window, so no sweep is needed.
type RedisWindows struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisWindows(url string) (*RedisWindows, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisWindows{
		client: redis.NewClient(opt),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (rw *RedisWindows) Incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	full := redisWindowPrefix + key
	count, err := rw.client.Incr(ctx, full).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 1 {
		if err := rw.client.PExpire(ctx, full, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
		return int(count), rw.now().Add(window), nil
	}
	ttl, err := rw.client.PTTL(ctx, full).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if ttl < 0 {
		// Key somehow lost its expiry; restore it so the window closes.
		_ = rw.client.PExpire(ctx, full, window).Err()
		ttl = window
	}
	return int(count), rw.now().Add(ttl), nil
}

func (rw *RedisWindows) Ping(ctx context.Context) error {
	return rw.client.Ping(ctx).Err()
}

func (rw *RedisWindows) Close() error {
	return rw.client.Close()
}
