package core

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

// KVStore persists raw values by key.
type KVStore interface {
	// Get returns ErrKeyNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte) error
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}
