package registry

import (
	"context"
	"errors"
	"testing"
)

func TestGetBuildsOncePerTenant(t *testing.T) {
	builds := 0
	c := New(func(ctx context.Context, tenantID string) (string, error) {
		builds++
		return "client-" + tenantID, nil
	})

	for i := 0; i < 3; i++ {
		got, err := c.Get(context.Background(), "t1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != "client-t1" {
			t.Fatalf("got %q", got)
		}
	}
	if _, err := c.Get(context.Background(), "t2"); err != nil {
		t.Fatalf("Get t2: %v", err)
	}
	if builds != 2 {
		t.Fatalf("builds = %d, want 2", builds)
	}
}

func TestInvalidateForcesRebuild(t *testing.T) {
	builds := 0
	c := New(func(ctx context.Context, tenantID string) (int, error) {
		builds++
		return builds, nil
	})

	first, _ := c.Get(context.Background(), "t1")
	c.Invalidate("t1")
	second, _ := c.Get(context.Background(), "t1")
	if first == second {
		t.Fatalf("expected rebuild after invalidate, got %d twice", first)
	}
}

func TestBuildErrorIsNotCached(t *testing.T) {
	fail := true
	c := New(func(ctx context.Context, tenantID string) (string, error) {
		if fail {
			return "", errors.New("gateway unreachable")
		}
		return "ok", nil
	})

	if _, err := c.Get(context.Background(), "t1"); err == nil {
		t.Fatal("want error")
	}
	fail = false
	got, err := c.Get(context.Background(), "t1")
	if err != nil || got != "ok" {
		t.Fatalf("got %q, %v", got, err)
	}
}
