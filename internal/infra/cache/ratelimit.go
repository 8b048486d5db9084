package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const rateKeyPrefix = "mindcamp:ratelimit:"

// ─── Redis Limiter ──────────────────────────────────────────────────────────

// RedisLimiter is a fixed-window counter shared by every process that talks
// to the same Redis.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter creates a limiter on client.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow counts one hit on key. When the window's count exceeds limit it
// returns false and how long until the window resets.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	k := rateKeyPrefix + key
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr rate key: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire rate key: %w", err)
		}
	}
	if n <= int64(limit) {
		return true, 0, nil
	}

	ttl, err := l.client.TTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ttl rate key: %w", err)
	}
	if ttl < 0 {
		// Key lost its expiry (crash between INCR and EXPIRE); restore it.
		l.client.Expire(ctx, k, window)
		ttl = window
	}
	return false, ttl, nil
}

// ─── Memory Limiter ─────────────────────────────────────────────────────────

// MemoryLimiter is the single-process fallback when Redis is not configured.
// Each instance owns its windows; nothing is shared through package state.
type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter creates a limiter. now may be nil for the wall clock.
func NewMemoryLimiter(now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{now: now, windows: make(map[string]*window)}
}

// Allow counts one hit on key within a fixed window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, d time.Duration) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(d)}
		l.windows[key] = w
		l.sweep(now)
	}
	w.count++
	if w.count <= limit {
		return true, 0, nil
	}
	return false, w.resetAt.Sub(now), nil
}

// sweep drops expired windows. Caller holds mu.
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}
