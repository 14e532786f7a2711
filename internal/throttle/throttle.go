// Package throttle limits how often an action may repeat for one key, such as
// sending a verification email to one address.
package throttle

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Throttle reports whether an action for key may run now. A true result
// claims the window.
type Throttle interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

type RedisThrottle struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *RedisThrottle {
	return &RedisThrottle{client: client, prefix: prefix}
}

func (t *RedisThrottle) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	return t.client.SetNX(ctx, t.prefix+key, time.Now().Unix(), window).Result()
}

// MemoryThrottle is the single-process fallback when Redis is unavailable.
type MemoryThrottle struct {
	mu      sync.Mutex
	until   map[string]time.Time
	now     func() time.Time
	sweepAt time.Time
}

func NewMemory() *MemoryThrottle {
	return &MemoryThrottle{until: make(map[string]time.Time), now: time.Now}
}

func (t *MemoryThrottle) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.After(t.sweepAt) {
		for k, until := range t.until {
			if !now.Before(until) {
				delete(t.until, k)
			}
		}
		t.sweepAt = now.Add(time.Minute)
	}

	if until, ok := t.until[key]; ok && now.Before(until) {
		return false, nil
	}
	t.until[key] = now.Add(window)
	return true, nil
}

var (
	_ Throttle = (*RedisThrottle)(nil)
	_ Throttle = (*MemoryThrottle)(nil)
)
