package bridge

import (
	"context"
	"testing"
)

func TestMemoryGuard(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()

	if ok, _ := g.Acquire(ctx, "a"); !ok {
		t.Fatalf("expected first acquire")
	}
	if ok, _ := g.Acquire(ctx, "a"); ok {
		t.Fatalf("expected second acquire to fail")
	}
	if ok, _ := g.Acquire(ctx, "b"); !ok {
		t.Fatalf("expected other key to be independent")
	}
	_ = g.Release(ctx, "a")
	if ok, _ := g.Acquire(ctx, "a"); !ok {
		t.Fatalf("expected acquire after release")
	}
}

func TestRedisGuard_Defaults(t *testing.T) {
	g := NewRedisGuard(nil)
	if g.key("agent") != "dialer:dial:agent" {
		t.Fatalf("unexpected key %q", g.key("agent"))
	}
	if g.ttl() != defaultGuardTTL {
		t.Fatalf("unexpected ttl %v", g.ttl())
	}
	if _, err := g.Acquire(context.Background(), "agent"); err == nil {
		t.Fatalf("expected error without a client")
	}
}
