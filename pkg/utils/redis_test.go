package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestAcquireSlot_RespectsLimit(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	for _, holder := range []string{"a", "b"} {
		ok, err := AcquireSlot(ctx, rdb, "voice:slots", holder, 2, time.Minute)
		if err != nil || !ok {
			t.Fatalf("expected %s to acquire, ok=%v err=%v", holder, ok, err)
		}
	}

	ok, err := AcquireSlot(ctx, rdb, "voice:slots", "c", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatalf("expected third holder to be rejected")
	}

	if err := ReleaseSlot(ctx, rdb, "voice:slots", "a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = AcquireSlot(ctx, rdb, "voice:slots", "c", 2, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected c to acquire after release, ok=%v err=%v", ok, err)
	}
}

func TestAcquireSlot_ReentrantForSameHolder(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := AcquireSlot(ctx, rdb, "k", "same", 1, time.Minute)
		if err != nil || !ok {
			t.Fatalf("attempt %d: ok=%v err=%v", i, ok, err)
		}
	}
}

func TestAcquireSlot_ValidatesArgs(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	if _, err := AcquireSlot(ctx, nil, "k", "h", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := AcquireSlot(ctx, rdb, "", "h", 1, time.Second); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := AcquireSlot(ctx, rdb, "k", "h", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := AcquireSlot(ctx, rdb, "k", "h", 1, 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
