package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Tslilon/kinspariscoffeeshades/internal/cache/blobstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// in-memory blob store for exercising the durable tier
type memBlob struct {
	mu      sync.Mutex
	m       map[string][]byte
	puts    int
	getErr  error
	putErr  error
	swept   time.Time
	sweeps  int
	pingErr error
}

func newMemBlob() *memBlob { return &memBlob{m: map[string][]byte{}} }

func (b *memBlob) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	v, ok := b.m[key]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return v, nil
}

func (b *memBlob) Put(_ context.Context, key string, val []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.putErr != nil {
		return b.putErr
	}
	b.m[key] = val
	return nil
}

func (b *memBlob) Del(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.m, k)
	}
	return nil
}

func (b *memBlob) Sweep(_ context.Context, olderThan time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sweeps++
	b.swept = olderThan
	return nil
}

func (b *memBlob) Ping(_ context.Context) error { return b.pingErr }
func (b *memBlob) Name() string                 { return "mem" }

func newStoreForTest(t *testing.T, durable blobstore.Store) (*Store, *fakeClock) {
	t.Helper()
	fc := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	return New(durable, nil, WithClock(fc.Now)), fc
}

func TestRoundTrip_FreshWithinTTL(t *testing.T) {
	s, _ := newStoreForTest(t, newMemBlob())
	ctx := context.Background()

	if err := SetJSON(ctx, s, "k", "hello", time.Minute, 0); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	v, lk := GetJSON[string](ctx, s, "k")
	if !lk.Found || lk.IsStale || lk.ShouldRefresh {
		t.Fatalf("expected fresh hit, got %+v", lk)
	}
	if v != "hello" {
		t.Fatalf("value = %q", v)
	}
}

func TestSWRBoundary(t *testing.T) {
	s, fc := newStoreForTest(t, nil)
	ctx := context.Background()

	s.Set(ctx, "k", json.RawMessage(`1`), 100*time.Millisecond, 50*time.Millisecond)

	fc.Add(120 * time.Millisecond)
	lk := s.Get(ctx, "k")
	if !lk.Found || !lk.IsStale || !lk.ShouldRefresh {
		t.Fatalf("at t=120ms want stale+refresh, got %+v", lk)
	}

	fc.Add(80 * time.Millisecond) // t = 200ms
	lk = s.Get(ctx, "k")
	if lk.Found {
		t.Fatalf("at t=200ms entry must be expired, got %+v", lk)
	}
}

func TestDurableHit_RepopulatesFastTier(t *testing.T) {
	blob := newMemBlob()
	s, fc := newStoreForTest(t, blob)
	ctx := context.Background()

	s.Set(ctx, "k", json.RawMessage(`"v"`), time.Minute, 0)

	// fresh store sharing the durable tier but an empty fast tier
	s2 := New(blob, nil, WithClock(fc.Now))
	lk := s2.Get(ctx, "k")
	if !lk.Found || lk.IsStale {
		t.Fatalf("expected durable hit, got %+v", lk)
	}
	if _, ok := s2.fast.Get("k"); !ok {
		t.Fatal("durable hit must repopulate the fast tier")
	}
}

func TestDurableFailures_NeverPropagate(t *testing.T) {
	blob := newMemBlob()
	blob.putErr = errors.New("disk full")
	s, _ := newStoreForTest(t, blob)
	ctx := context.Background()

	s.Set(ctx, "k", json.RawMessage(`7`), time.Minute, 0)

	// fast tier must retain the value despite the durable failure
	lk := s.Get(ctx, "k")
	if !lk.Found {
		t.Fatal("fast-tier value lost after durable write failure")
	}

	blob.getErr = errors.New("io error")
	s2 := New(blob, nil)
	if lk := s2.Get(ctx, "other"); lk.Found {
		t.Fatalf("durable read error must be a miss, got %+v", lk)
	}
}

func TestMalformedDurableEntry_IsAMiss(t *testing.T) {
	blob := newMemBlob()
	blob.m["k"] = []byte(`{not json`)
	s, _ := newStoreForTest(t, blob)

	if lk := s.Get(context.Background(), "k"); lk.Found {
		t.Fatalf("corrupt entry must be a miss, got %+v", lk)
	}
}

func TestCleanup_EvictsExpiredAndSweepsDurable(t *testing.T) {
	blob := newMemBlob()
	s, fc := newStoreForTest(t, blob)
	ctx := context.Background()

	s.Set(ctx, "old", json.RawMessage(`1`), 10*time.Millisecond, 5*time.Millisecond)
	s.Set(ctx, "live", json.RawMessage(`2`), time.Hour, 0)

	fc.Add(time.Second)
	s.Cleanup(ctx)

	if _, ok := s.fast.Peek("old"); ok {
		t.Fatal("expired entry survived cleanup")
	}
	if _, ok := s.fast.Peek("live"); !ok {
		t.Fatal("live entry evicted by cleanup")
	}
	if blob.sweeps != 1 {
		t.Fatalf("sweeps = %d, want 1", blob.sweeps)
	}
	wantCutoff := fc.Now().Add(-RetentionCeiling)
	if !blob.swept.Equal(wantCutoff) {
		t.Fatalf("sweep cutoff = %v, want %v", blob.swept, wantCutoff)
	}
}

func TestTypedMismatch_BehavesLikeMiss(t *testing.T) {
	s, _ := newStoreForTest(t, nil)
	ctx := context.Background()

	s.Set(ctx, "k", json.RawMessage(`"text"`), time.Minute, 0)
	_, lk := GetJSON[int](ctx, s, "k")
	if lk.Found {
		t.Fatalf("schema mismatch must behave like a miss, got %+v", lk)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s, _ := newStoreForTest(t, newMemBlob())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.Set(ctx, "shared", json.RawMessage(`0`), time.Minute, 0)
		}(i)
		go func(n int) {
			defer wg.Done()
			_ = s.Get(ctx, "shared")
		}(i)
	}
	wg.Wait()

	if lk := s.Get(ctx, "shared"); !lk.Found {
		t.Fatal("value missing after concurrent access")
	}
}

// wraps memBlob and records whether each op carried a context deadline
type deadlineBlob struct {
	*memBlob
	mu        sync.Mutex
	deadlines []bool
}

func (b *deadlineBlob) observe(ctx context.Context) {
	_, ok := ctx.Deadline()
	b.mu.Lock()
	b.deadlines = append(b.deadlines, ok)
	b.mu.Unlock()
}

func (b *deadlineBlob) Get(ctx context.Context, key string) ([]byte, error) {
	b.observe(ctx)
	return b.memBlob.Get(ctx, key)
}

func (b *deadlineBlob) Put(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	b.observe(ctx)
	return b.memBlob.Put(ctx, key, val, ttl)
}

func (b *deadlineBlob) Del(ctx context.Context, keys ...string) error {
	b.observe(ctx)
	return b.memBlob.Del(ctx, keys...)
}

func (b *deadlineBlob) Sweep(ctx context.Context, olderThan time.Time) error {
	b.observe(ctx)
	return b.memBlob.Sweep(ctx, olderThan)
}

func TestOpTimeout_BoundsDurableOperations(t *testing.T) {
	db := &deadlineBlob{memBlob: newMemBlob()}
	fc := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	s := New(db, nil, WithClock(fc.Now), WithOpTimeout(250*time.Millisecond))
	ctx := context.Background()

	s.Set(ctx, "k", json.RawMessage(`1`), time.Minute, 0)

	// separate store so the fast tier misses and the durable Get runs
	s2 := New(db, nil, WithClock(fc.Now), WithOpTimeout(250*time.Millisecond))
	if lk := s2.Get(ctx, "k"); !lk.Found {
		t.Fatal("durable hit expected")
	}

	s.Del(ctx, "k")
	s.Cleanup(ctx)

	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.deadlines) != 4 {
		t.Fatalf("observed %d durable ops, want 4", len(db.deadlines))
	}
	for i, hasDeadline := range db.deadlines {
		if !hasDeadline {
			t.Fatalf("durable op %d ran without a deadline", i)
		}
	}
}

func TestOpTimeout_UnsetLeavesContextAlone(t *testing.T) {
	db := &deadlineBlob{memBlob: newMemBlob()}
	s, _ := newStoreForTest(t, db)

	s.Set(context.Background(), "k", json.RawMessage(`1`), time.Minute, 0)

	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.deadlines) != 1 || db.deadlines[0] {
		t.Fatalf("put should keep the caller context, got %v", db.deadlines)
	}
}
