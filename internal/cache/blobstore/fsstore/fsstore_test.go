package fsstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Tslilon/kinspariscoffeeshades/internal/cache/blobstore"
)

func TestPutGetDel(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "k1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("got %q", got)
	}

	if err := s.Del(ctx, "k1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := s.Get(ctx, "k1"); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGet_MissingKeyIsNotFound(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPut_SameKeyConvergesToOneFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "k", []byte("a"), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "k", []byte("b"), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("want one file for one key, got %d", len(entries))
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "b" {
		t.Fatalf("Get after overwrite: %q, %v", got, err)
	}
}

func TestSweep_RemovesOnlyOldFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "old", []byte("x"), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "new", []byte("y"), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// backdate the "old" blob
	oldPath := s.path("old")
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if err := s.Sweep(ctx, time.Now().Add(-24*time.Hour)); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if _, err := s.Get(ctx, "old"); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("old blob survived sweep: %v", err)
	}
	if _, err := s.Get(ctx, "new"); err != nil {
		t.Fatalf("new blob removed by sweep: %v", err)
	}
}

func TestSweep_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	foreign := filepath.Join(dir, "README.txt")
	if err := os.WriteFile(foreign, []byte("keep"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	past := time.Now().Add(-48 * time.Hour)
	_ = os.Chtimes(foreign, past, past)

	if err := s.Sweep(context.Background(), time.Now()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Fatalf("foreign file removed: %v", err)
	}
}
