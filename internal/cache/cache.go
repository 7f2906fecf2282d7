// Package cache implements the two-tier stale-while-revalidate store.
//
// The fast tier is a bounded in-process LRU; the durable tier is a pluggable
// blob store. Entries are self-describing, so any reader can determine
// freshness without external bookkeeping. Durable-tier failures are swallowed
// and treated as a miss for that tier, never surfaced to callers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Tslilon/kinspariscoffeeshades/internal/cache/blobstore"
	"github.com/Tslilon/kinspariscoffeeshades/internal/core/observability"
)

// RetentionCeiling bounds durable-tier growth regardless of per-entry TTL.
const RetentionCeiling = 7 * 24 * time.Hour

const defaultFastSize = 4096

// Entry is one cached value with its freshness envelope.
type Entry struct {
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"storedAt"`
	TTL      time.Duration   `json:"ttl"`
	SWR      time.Duration   `json:"swr,omitempty"`
}

type freshness int

const (
	fresh freshness = iota
	staleUsable
	expired
)

func (e Entry) freshnessAt(now time.Time) freshness {
	age := now.Sub(e.StoredAt)
	switch {
	case age <= e.TTL:
		return fresh
	case age <= e.TTL+e.SWR:
		return staleUsable
	default:
		return expired
	}
}

// Lookup is the result of a Get.
type Lookup struct {
	Data          json.RawMessage
	Found         bool
	IsStale       bool
	ShouldRefresh bool
}

type Store struct {
	fast    *lru.Cache[string, Entry]
	durable blobstore.Store
	logger  *slog.Logger

	opTimeout time.Duration
	now       func() time.Time
}

type Option func(*Store)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithOpTimeout bounds every durable-tier operation; a slow blob store then
// degrades to a miss instead of stalling the request.
func WithOpTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

func WithFastSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			c, _ := lru.New[string, Entry](n)
			s.fast = c
		}
	}
}

func New(durable blobstore.Store, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	c, _ := lru.New[string, Entry](defaultFastSize)
	s := &Store{
		fast:    c,
		durable: durable,
		logger:  logger,
		now:     time.Now,
	}
	for _, f := range opts {
		f(s)
	}
	return s
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// Get checks the fast tier first, then the durable tier; a durable hit
// repopulates the fast tier. Expired entries are never returned.
// ShouldRefresh mirrors IsStale and signals the caller to trigger a
// background recompute.
func (s *Store) Get(ctx context.Context, key string) Lookup {
	now := s.now()

	if e, ok := s.fast.Get(key); ok {
		switch e.freshnessAt(now) {
		case fresh:
			observability.IncCacheHit("fast")
			return Lookup{Data: e.Data, Found: true}
		case staleUsable:
			observability.IncCacheStale("fast")
			return Lookup{Data: e.Data, Found: true, IsStale: true, ShouldRefresh: true}
		default:
			s.fast.Remove(key)
		}
	}

	if s.durable == nil {
		observability.IncCacheMiss("fast")
		return Lookup{}
	}

	opctx, cancel := s.opCtx(ctx)
	defer cancel()
	raw, err := s.durable.Get(opctx, key)
	if err != nil {
		if err != blobstore.ErrNotFound {
			s.logger.Debug("durable get failed, treating as miss", "key", key, "err", err)
		}
		observability.IncCacheMiss("durable")
		return Lookup{}
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// corrupt payload behaves like a miss
		s.logger.Debug("durable entry malformed, treating as miss", "key", key, "err", err)
		observability.IncCacheMiss("durable")
		return Lookup{}
	}

	switch e.freshnessAt(now) {
	case fresh:
		s.fast.Add(key, e)
		observability.IncCacheHit("durable")
		return Lookup{Data: e.Data, Found: true}
	case staleUsable:
		s.fast.Add(key, e)
		observability.IncCacheStale("durable")
		return Lookup{Data: e.Data, Found: true, IsStale: true, ShouldRefresh: true}
	default:
		observability.IncCacheMiss("durable")
		return Lookup{}
	}
}

// Set writes the fast tier synchronously and the durable tier best-effort:
// a durable-write failure never fails the call.
func (s *Store) Set(ctx context.Context, key string, data json.RawMessage, ttl, swr time.Duration) {
	e := Entry{Data: data, StoredAt: s.now(), TTL: ttl, SWR: swr}
	s.fast.Add(key, e)

	if s.durable == nil {
		return
	}
	raw, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("marshal cache entry", "key", key, "err", err)
		return
	}
	durableTTL := ttl + swr
	if durableTTL <= 0 || durableTTL > RetentionCeiling {
		durableTTL = RetentionCeiling
	}
	opctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.durable.Put(opctx, key, raw, durableTTL); err != nil {
		s.logger.Warn("durable write failed, fast tier retained", "key", key, "err", err)
	}
}

// Del drops a key from both tiers.
func (s *Store) Del(ctx context.Context, keys ...string) {
	for _, k := range keys {
		s.fast.Remove(k)
	}
	if s.durable == nil || len(keys) == 0 {
		return
	}
	opctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.durable.Del(opctx, keys...); err != nil {
		s.logger.Warn("durable delete failed", "keys", len(keys), "err", err)
	}
}

// Cleanup evicts fast-tier entries past ttl+swr and sweeps durable entries
// older than the retention ceiling.
func (s *Store) Cleanup(ctx context.Context) {
	now := s.now()
	for _, k := range s.fast.Keys() {
		if e, ok := s.fast.Peek(k); ok && e.freshnessAt(now) == expired {
			s.fast.Remove(k)
		}
	}
	if s.durable == nil {
		return
	}
	opctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.durable.Sweep(opctx, now.Add(-RetentionCeiling)); err != nil {
		s.logger.Warn("durable sweep failed", "err", err)
	}
}

// GetJSON reads and unmarshals a typed value.
func GetJSON[T any](ctx context.Context, s *Store, key string) (T, Lookup) {
	var v T
	lk := s.Get(ctx, key)
	if !lk.Found {
		return v, lk
	}
	if err := json.Unmarshal(lk.Data, &v); err != nil {
		// schema mismatch behaves like a miss
		s.logger.Debug("cached value does not unmarshal, treating as miss", "key", key, "err", err)
		return v, Lookup{}
	}
	return v, lk
}

// SetJSON marshals and stores a typed value.
func SetJSON[T any](ctx context.Context, s *Store, key string, v T, ttl, swr time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	s.Set(ctx, key, raw, ttl, swr)
	return nil
}
