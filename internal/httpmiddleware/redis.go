package httpmiddleware

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow is a fixed-window counter shared by every API replica.
// It fails open when Redis is unreachable.
type RedisWindow struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisWindow allows limit hits per key per window.
func NewRedisWindow(client *redis.Client, prefix string, limit int, window time.Duration) *RedisWindow {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisWindow{client: client, prefix: prefix, limit: int64(limit), window: window}
}

// Allow counts a hit for key in the current window.
func (l *RedisWindow) Allow(ctx context.Context, key string) bool {
	slot := time.Now().UnixNano() / int64(l.window)
	k := l.prefix + ":" + key + ":" + strconv.FormatInt(slot, 10)

	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		log.Printf("rate limit: redis incr failed: %v", err)
		return true
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			log.Printf("rate limit: redis expire failed: %v", err)
		}
	}
	return n <= l.limit
}
