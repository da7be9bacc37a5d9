package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sa-platform/sa/pkg/models"
)

func newTestStore(t *testing.T, namespace string) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	s, err := New(dbPath, namespace)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "image")

	want := models.Multiple([]string{"https://cdn.example/a.png", "https://cdn.example/b.png"})
	if err := s.Put(ctx, "k1", want); err != nil {
		t.Fatal(err)
	}

	got, ok := s.Get(ctx, "k1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.Equal(want) {
		t.Errorf("unexpected value: %v", got.Items())
	}

	if _, ok := s.Get(ctx, "k2"); ok {
		t.Error("expected cache miss for unknown key")
	}
}

func TestOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "audio")

	_ = s.Put(ctx, "k", models.Single("/tmp/one.mp3"))
	_ = s.Put(ctx, "k", models.Single("/tmp/two.mp3"))

	got, ok := s.Get(ctx, "k")
	if !ok || got.First() != "/tmp/two.mp3" {
		t.Errorf("expected overwritten value, got %q", got.First())
	}
	if s.Size(ctx) != 1 {
		t.Errorf("expected 1 entry, got %d", s.Size(ctx))
	}
}

func TestNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "shared.db")

	images, err := New(dbPath, "image")
	if err != nil {
		t.Fatal(err)
	}
	defer images.Close()
	videos, err := New(dbPath, "video")
	if err != nil {
		t.Fatal(err)
	}
	defer videos.Close()

	_ = images.Put(ctx, "same", models.Multiple([]string{"https://x/img.png"}))
	_ = videos.Put(ctx, "same", models.Single("https://x/vid.mp4"))

	img, _ := images.Get(ctx, "same")
	vid, _ := videos.Get(ctx, "same")
	if !img.IsMultiple() || vid.IsMultiple() {
		t.Error("namespaces should hold independent values")
	}

	n, err := images.Clear(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 cleared, got %d", n)
	}
	if videos.Size(ctx) != 1 {
		t.Error("clearing one namespace should not touch another")
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "image")

	_ = s.Put(ctx, "h1", models.Single("a"))
	_ = s.Put(ctx, "h2", models.Single("b"))

	n, err := s.Clear(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 cleared, got %d", n)
	}
	if _, ok := s.Get(ctx, "h1"); ok {
		t.Error("expected miss after clear")
	}
	if s.Size(ctx) != 0 {
		t.Errorf("expected empty store, got %d", s.Size(ctx))
	}
}
