package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pastry/pkg/domain"
)

func TestFileRoundTrip(t *testing.T) {
	f := NewFile(t.TempDir())
	ctx := context.Background()

	locator, err := f.Store(ctx, "abc12345", "", []byte("hello world"))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	got, err := f.Retrieve(ctx, locator)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("Retrieve = %q; want %q", got, "hello world")
	}
}

func TestFileAnonymousNamespaceByDate(t *testing.T) {
	root := t.TempDir()
	f := NewFile(root)
	f.now = func() time.Time {
		return time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC)
	}

	locator, err := f.Store(context.Background(), "slug1234", "", []byte("x"))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	wantDir := filepath.Join(root, "pastes", "2026", "03", "07")
	if filepath.Dir(locator) != wantDir {
		t.Errorf("locator dir = %q; want %q", filepath.Dir(locator), wantDir)
	}
	if !strings.HasSuffix(locator, ".txt") {
		t.Errorf("locator %q missing .txt suffix", locator)
	}
}

func TestFileUserNamespace(t *testing.T) {
	root := t.TempDir()
	f := NewFile(root)

	locator, err := f.Store(context.Background(), "slug1234", "alice", []byte("x"))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	wantDir := filepath.Join(root, "users", "alice")
	if filepath.Dir(locator) != wantDir {
		t.Errorf("locator dir = %q; want %q", filepath.Dir(locator), wantDir)
	}
}

func TestFileStableLocator(t *testing.T) {
	f := NewFile(t.TempDir())
	ctx := context.Background()

	first, err := f.Store(ctx, "samereused", "bob", []byte("v1"))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	second, err := f.Store(ctx, "samereused", "bob", []byte("v2"))
	if err != nil {
		t.Fatalf("re-Store failed: %v", err)
	}
	if first != second {
		t.Errorf("locator changed on re-store: %q vs %q", first, second)
	}
	got, err := f.Retrieve(ctx, second)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("Retrieve = %q; want overwritten body", got)
	}
}

func TestFileMissingLocator(t *testing.T) {
	f := NewFile(t.TempDir())
	_, err := f.Retrieve(context.Background(), filepath.Join(f.root, "nope.txt"))
	if err != domain.ErrStorageMissing {
		t.Errorf("Retrieve = %v; want ErrStorageMissing", err)
	}
}

func TestFileDeleteIdempotent(t *testing.T) {
	f := NewFile(t.TempDir())
	ctx := context.Background()

	locator, err := f.Store(ctx, "gonesoon", "", []byte("x"))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := f.Delete(ctx, locator); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(locator); !os.IsNotExist(err) {
		t.Error("file still present after Delete")
	}
	if err := f.Delete(ctx, locator); err != nil {
		t.Errorf("second Delete returned %v; want nil", err)
	}
}

func TestInlineRoundTrip(t *testing.T) {
	var inline Inline
	ctx := context.Background()

	locator, err := inline.Store(ctx, "slug", "", []byte("body"))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	got, err := inline.Retrieve(ctx, locator)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if string(got) != "body" {
		t.Errorf("Retrieve = %q; want %q", got, "body")
	}
	if inline.Mode() != domain.StorageInline {
		t.Errorf("Mode = %v; want StorageInline", inline.Mode())
	}
}
