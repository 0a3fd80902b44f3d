package devbackend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter caps how often a subject may perform an action within a window.
type Limiter interface {
	Allow(ctx context.Context, scope, subject string) (allowed bool, retryAfter time.Duration, err error)
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisLimiter is a fixed-window Limiter shared through Redis.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "surgicalm:rate_limit"
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (r *RedisLimiter) Allow(ctx context.Context, scope, subject string) (bool, time.Duration, error) {
	if r.limit <= 0 {
		return true, 0, nil
	}
	key := fmt.Sprintf("%s:%s:%s", r.prefix, scope, strings.ToLower(strings.TrimSpace(subject)))
	raw, err := fixedWindowScript.Run(ctx, r.client, []string{key}, r.window.Milliseconds()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to run rate limit script: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit response shape: %T", raw)
	}
	count, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected rate limit count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected rate limit ttl type: %T", values[1])
	}
	if count > int64(r.limit) {
		return false, time.Duration(ttlMs) * time.Millisecond, nil
	}
	return true, 0, nil
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is the in-process fixed-window Limiter used without Redis.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryLimiter(limit int, w time.Duration) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, window: w, windows: make(map[string]*window), now: time.Now}
}

func (m *MemoryLimiter) Allow(_ context.Context, scope, subject string) (bool, time.Duration, error) {
	if m.limit <= 0 {
		return true, 0, nil
	}
	key := scope + ":" + strings.ToLower(strings.TrimSpace(subject))
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(m.window)}
		m.windows[key] = w
	}
	w.count++
	if w.count > m.limit {
		return false, w.resetAt.Sub(now), nil
	}
	return true, 0, nil
}
