package sessionstore

import (
	"context"
	"time"
)

// Backend is the server-side key/value store behind LocalProvider. Values are grouped by
// namespace, one per device.
type Backend interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Set(ctx context.Context, namespace, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
}
