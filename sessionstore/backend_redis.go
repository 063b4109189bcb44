package sessionstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBackend keeps local store values in Redis under <prefix>:<namespace>:<key>.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend connects to redisURL and verifies the connection.
func NewRedisBackend(ctx context.Context, redisURL, prefix string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("[sessionstore NewRedisBackend] invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("[sessionstore NewRedisBackend] failed to connect to redis: %w", err)
	}
	return NewRedisBackendFromClient(client, prefix), nil
}

func NewRedisBackendFromClient(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "hub:session"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

// Client exposes the underlying connection so other components can share it.
func (b *RedisBackend) Client() *redis.Client {
	return b.client
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) key(namespace, key string) string {
	return fmt.Sprintf("%s:%s:%s", b.prefix, namespace, key)
}

func (b *RedisBackend) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	v, err := b.client.Get(ctx, b.key(namespace, key)).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	return v, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, namespace, key, value string, ttl time.Duration) error {
	if err := b.client.Set(ctx, b.key(namespace, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, namespace, key string) error {
	if err := b.client.Del(ctx, b.key(namespace, key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
