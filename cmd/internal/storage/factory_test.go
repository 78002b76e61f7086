package storage

import (
	"context"
	"errors"
	"testing"
)

func TestNew_Drivers(t *testing.T) {
	ctx := context.Background()

	st, err := New(ctx, Config{}, "tab-a", Dependencies{})
	if err != nil {
		t.Fatalf("default driver: %v", err)
	}
	if _, ok := st.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", st)
	}

	area := NewArea()
	a, _ := New(ctx, Config{Driver: "MEMORY"}, "tab-a", Dependencies{Area: area})
	b, _ := New(ctx, Config{Driver: DriverMemory}, "tab-b", Dependencies{Area: area})
	_ = a.Set(ctx, "k", "v")
	if v, _, _ := b.Get(ctx, "k"); v != "v" {
		t.Fatalf("tabs on the same area must share values")
	}

	if _, err := New(ctx, Config{Driver: DriverPostgres}, "tab-a", Dependencies{}); err == nil {
		t.Fatalf("expected error without pool")
	}
	if _, err := New(ctx, Config{Driver: DriverRedis}, "tab-a", Dependencies{}); err == nil {
		t.Fatalf("expected error without redis config")
	}
	if _, err := New(ctx, Config{Driver: "etcd"}, "tab-a", Dependencies{}); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected ErrUnsupportedDriver, got %v", err)
	}
}
