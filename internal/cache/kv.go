// Package cache is the local persistence layer: a small key-value store that
// survives restarts, holding the logged-in session, the locally provisioned
// fallback user list and the per-user attendance log.
package cache

import (
	"context"
	"fmt"

	"checkin/internal/config"
)

// KV is the abstraction over different persistence backends.
// Get returns (nil, nil) when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Open selects a backend from config: "file" (default), "sqlite" or "redis".
func Open(cfg config.App) (KV, error) {
	switch cfg.CacheBackend {
	case "", "file":
		return NewFileKV(cfg.DataDir)
	case "sqlite":
		return NewSQLiteKV(cfg.DataDir)
	case "redis":
		return NewRedisKV(cfg.RedisAddr), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
