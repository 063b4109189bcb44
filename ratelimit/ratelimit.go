// Package ratelimit limits sign-in attempts per identifier with fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/rs/zerolog/log"
)

// Limiter returns errors.ErrRateLimited once key has used up its attempts for the window.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

type Config struct {
	Attempts int
	Window   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = 10
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	return c
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// RedisLimiter shares counters between hub instances. Redis failures let the attempt through.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	config Config
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, prefix string, config Config) *RedisLimiter {
	if prefix == "" {
		prefix = "hub:signin"
	}
	return &RedisLimiter{client: client, prefix: prefix, config: config.withDefaults()}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	window := time.Now().Unix() / int64(l.config.Window.Seconds())
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, normalizeKey(key), window)

	n, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		log.Warn().Err(err).Msg("[ratelimit Allow] redis unavailable, allowing attempt")
		return nil
	}
	if n == 1 {
		if err := l.client.Expire(ctx, redisKey, l.config.Window).Err(); err != nil {
			log.Warn().Err(err).Str("key", redisKey).Msg("[ratelimit Allow] failed to set window expiry")
		}
	}
	if n > int64(l.config.Attempts) {
		return errors.Wrapf(errors.ErrRateLimited, "%d attempts in %s", n, l.config.Window)
	}
	return nil
}

type window struct {
	start time.Time
	count int
}

// MemoryLimiter is a single-process limiter used when no Redis is configured.
type MemoryLimiter struct {
	config  Config
	now     func() time.Time
	windows map[string]*window
	mu      sync.Mutex
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(config Config) *MemoryLimiter {
	return &MemoryLimiter{
		config:  config.withDefaults(),
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// WithClock replaces the time source.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key = normalizeKey(key)
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.config.Window {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++
	if w.count > l.config.Attempts {
		return errors.Wrapf(errors.ErrRateLimited, "%d attempts in %s", w.count, l.config.Window)
	}
	return nil
}

// Cleanup drops expired windows.
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.config.Window {
			delete(l.windows, key)
		}
	}
}

// StartCleanup runs Cleanup once per window until ctx is done.
func (l *MemoryLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(l.config.Window)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}
