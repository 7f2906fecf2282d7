// Package fsstore implements the durable cache tier on the local filesystem.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Tslilon/kinspariscoffeeshades/internal/cache/blobstore"
	"github.com/Tslilon/kinspariscoffeeshades/internal/core/observability"
)

type Store struct {
	dir string
}

var _ blobstore.Store = (*Store)(nil)

func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("fsstore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore mkdir %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Name() string { return "fs" }

func (s *Store) Ping(_ context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("fsstore stat %q: %w", s.dir, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	b, err := os.ReadFile(s.path(key))
	observability.ObserveCacheOp("get", s.Name(), err, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, blobstore.ErrNotFound
		}
		return nil, fmt.Errorf("fsstore read %q: %w", key, err)
	}
	return b, nil
}

// Put writes through a temp file and renames into place. The final name is a
// hash of the logical key, so concurrent writers of the same key converge on
// the same file without coordination.
func (s *Store) Put(ctx context.Context, key string, val []byte, _ time.Duration) error {
	start := time.Now()
	err := s.put(key, val)
	observability.ObserveCacheOp("put", s.Name(), err, time.Since(start).Seconds())
	return err
}

func (s *Store) put(key string, val []byte) error {
	dst := s.path(key)
	tmp, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return fmt.Errorf("fsstore temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(val); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("fsstore write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("fsstore close %q: %w", key, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("fsstore rename %q: %w", key, err)
	}
	return nil
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	start := time.Now()
	var firstErr error
	for _, k := range keys {
		if err := os.Remove(s.path(k)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			if firstErr == nil {
				firstErr = fmt.Errorf("fsstore del %q: %w", k, err)
			}
		}
	}
	observability.ObserveCacheOp("del", s.Name(), firstErr, time.Since(start).Seconds())
	return firstErr
}

func (s *Store) Sweep(ctx context.Context, olderThan time.Time) error {
	start := time.Now()
	err := s.sweep(olderThan)
	observability.ObserveCacheOp("sweep", s.Name(), err, time.Since(start).Seconds())
	return err
}

func (s *Store) sweep(olderThan time.Time) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("fsstore readdir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(olderThan) {
			_ = os.Remove(filepath.Join(s.dir, e.Name()))
		}
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%016x.json", xxhash.Sum64String(key)))
}
