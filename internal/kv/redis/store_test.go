package redis

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/julianstephens/lockstep/internal/kv"
)

var _ kv.Provider = (*Store)(nil)

func TestIsURL(t *testing.T) {
	tests := map[string]bool{
		"redis://localhost:6379/0":    true,
		"rediss://cache.example:6380": true,
		"postgres://localhost/db":     false,
		"/home/me/lockstep.db":        false,
	}
	for in, want := range tests {
		if got := IsURL(in); got != want {
			t.Errorf("IsURL(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOperationsBeforeLoad(t *testing.T) {
	store := New("redis://localhost:6379/0")
	ctx := context.Background()

	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, kv.ErrNotLoaded) {
		t.Errorf("Get before Load = %v, want ErrNotLoaded", err)
	}
	if err := store.Remove(ctx, "k"); !errors.Is(err, kv.ErrNotLoaded) {
		t.Errorf("Remove before Load = %v, want ErrNotLoaded", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close on unloaded store: %v", err)
	}
}

func TestLoadRejectsBadURL(t *testing.T) {
	store := New("not-a-redis-url")
	if err := store.Load(); err == nil {
		t.Fatal("expected Load to reject an invalid url")
	}
}

// TestIntegrationRoundTrip requires a running Redis at REDIS_TEST_ADDR.
func TestIntegrationRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	store := NewWithClient(client, "lockstep-test:")
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "obligation:o1", `{"id":"o1"}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok, err := store.Get(ctx, "obligation:o1")
	if err != nil || !ok || value != `{"id":"o1"}` {
		t.Fatalf("Get = %q, %v, %v", value, ok, err)
	}

	if err := store.Remove(ctx, "obligation:o1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "obligation:o1"); ok {
		t.Error("expected key to be gone after Remove")
	}
}
