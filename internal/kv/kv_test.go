package kv

import (
	"context"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, err := m.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v err %v, want miss", ok, err)
	}

	if err := m.Set(ctx, "lock:u1", `{"id":"l1"}`); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	v, ok, err := m.Get(ctx, "lock:u1")
	if err != nil || !ok || v != `{"id":"l1"}` {
		t.Fatalf("Get() = %q, %v, %v", v, ok, err)
	}

	if err := m.Set(ctx, "lock:u1", `{"id":"l2"}`); err != nil {
		t.Fatalf("Set() overwrite failed: %v", err)
	}
	if v, _, _ := m.Get(ctx, "lock:u1"); v != `{"id":"l2"}` {
		t.Errorf("overwrite not applied, got %q", v)
	}

	if err := m.Remove(ctx, "lock:u1"); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if err := m.Remove(ctx, "lock:u1"); err != nil {
		t.Fatalf("Remove() of missing key should be a no-op, got %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}
