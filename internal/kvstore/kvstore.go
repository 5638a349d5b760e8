// Package kvstore is the durable key-value layer behind user preferences and the polling cache.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gasflow/internal/config"
)

var (
	// ErrNotFound indicates the key has never been written (or was deleted).
	ErrNotFound = errors.New("kvstore: key not found")
	// ErrClosed is returned by backends used after Close.
	ErrClosed = errors.New("kvstore: backend closed")
)

// Backend stores opaque values by key. Each Set replaces the whole value atomically.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Value is a typed view of one key, JSON encoded, with a default for absent keys.
type Value[T any] struct {
	backend Backend
	key     string
	def     T
}

// NewValue binds a key to a type and default.
func NewValue[T any](backend Backend, key string, def T) *Value[T] {
	return &Value[T]{backend: backend, key: key, def: def}
}

// Key returns the storage key.
func (v *Value[T]) Key() string {
	return v.key
}

// Default returns the value reported when the key is absent.
func (v *Value[T]) Default() T {
	return v.def
}

// Get 读取并解码；键不存在时返回默认值且不报错，解码失败时返回默认值和错误。
func (v *Value[T]) Get(ctx context.Context) (T, error) {
	raw, err := v.backend.Get(ctx, v.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return v.def, nil
		}
		return v.def, fmt.Errorf("get %s: %w", v.key, err)
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return v.def, fmt.Errorf("decode %s: %w", v.key, err)
	}
	return out, nil
}

// Lookup is Get but also reports whether the key was present.
func (v *Value[T]) Lookup(ctx context.Context) (T, bool, error) {
	raw, err := v.backend.Get(ctx, v.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return v.def, false, nil
		}
		return v.def, false, fmt.Errorf("get %s: %w", v.key, err)
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return v.def, false, fmt.Errorf("decode %s: %w", v.key, err)
	}
	return out, true, nil
}

// Set encodes and stores the value.
func (v *Value[T]) Set(ctx context.Context, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", v.key, err)
	}
	if err := v.backend.Set(ctx, v.key, raw); err != nil {
		return fmt.Errorf("set %s: %w", v.key, err)
	}
	return nil
}

// Reset removes the key so the default applies again.
func (v *Value[T]) Reset(ctx context.Context) error {
	if err := v.backend.Delete(ctx, v.key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete %s: %w", v.key, err)
	}
	return nil
}

// Open builds the backend selected by configuration.
func Open(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "file":
		return OpenFile(cfg.Path)
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path)
	case "redis":
		return OpenRedis(ctx, RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}
