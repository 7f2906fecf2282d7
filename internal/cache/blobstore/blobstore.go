// Package blobstore abstracts the durable cache tier behind a single
// storage-provider interface with filesystem and redis implementations.
package blobstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no blob exists for the key.
var ErrNotFound = errors.New("blobstore: not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// Sweep removes blobs stored before the cutoff, independent of per-entry TTL.
	Sweep(ctx context.Context, olderThan time.Time) error
	Ping(ctx context.Context) error
	Name() string
}
