package core

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrFileNotFound        = errors.New("file not found")
	ErrPresignNotSupported = errors.New("presigned urls are not supported by this file store")
)

// FileStore keeps uploaded solution notebooks.
type FileStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error
	// Get returns ErrFileNotFound when the key is absent.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// PresignGet returns ErrPresignNotSupported when the store cannot issue URLs.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
