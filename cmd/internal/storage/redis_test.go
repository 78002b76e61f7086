package storage

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newMiniRedisConfig(t *testing.T) Config {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return Config{
		Driver:    DriverRedis,
		Namespace: "test",
		Redis:     &RedisConfig{Addr: mr.Addr()},
	}
}

func TestRedisStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := newMiniRedisConfig(t)

	a, err := NewRedis(ctx, cfg, "tab-a")
	if err != nil {
		t.Fatalf("NewRedis a: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	b, err := NewRedis(ctx, cfg, "tab-b")
	if err != nil {
		t.Fatalf("NewRedis b: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	if _, ok, err := a.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	if err := a.Set(ctx, "arc.token", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := b.Get(ctx, "arc.token")
	if err != nil || !ok || v != "abc" {
		t.Fatalf("Get: v=%q ok=%v err=%v", v, ok, err)
	}

	if err := b.Apply(ctx, []Mutation{RemoveOp("arc.token"), SetOp("arc.logged_in", "false")}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok, _ := a.Get(ctx, "arc.token"); ok {
		t.Fatalf("token should be removed")
	}
	if v, _, _ := a.Get(ctx, "arc.logged_in"); v != "false" {
		t.Fatalf("logged_in=%q want false", v)
	}
}

func TestRedisStore_ChangeNotifications(t *testing.T) {
	ctx := context.Background()
	cfg := newMiniRedisConfig(t)

	a, err := NewRedis(ctx, cfg, "tab-a")
	if err != nil {
		t.Fatalf("NewRedis a: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	b, err := NewRedis(ctx, cfg, "tab-b")
	if err != nil {
		t.Fatalf("NewRedis b: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	own := make(chan Change, 4)
	unsubA, err := a.Subscribe(ctx, func(ch Change) { own <- ch })
	if err != nil {
		t.Fatalf("Subscribe a: %v", err)
	}
	defer unsubA()

	got := make(chan Change, 4)
	unsubB, err := b.Subscribe(ctx, func(ch Change) { got <- ch })
	if err != nil {
		t.Fatalf("Subscribe b: %v", err)
	}
	defer unsubB()

	if err := a.Set(ctx, "arc.logged_in", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// Same value again must not publish.
	if err := a.Set(ctx, "arc.logged_in", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := a.Set(ctx, "arc.logged_in", "false"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	first := waitChange(t, got)
	if first.NewValue != "true" || first.OldValue != "" || first.Origin != "tab-a" {
		t.Fatalf("unexpected first change: %+v", first)
	}
	second := waitChange(t, got)
	if second.OldValue != "true" || second.NewValue != "false" {
		t.Fatalf("unexpected second change: %+v", second)
	}

	select {
	case ch := <-own:
		t.Fatalf("writer observed its own change: %+v", ch)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitChange(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change")
		return Change{}
	}
}
