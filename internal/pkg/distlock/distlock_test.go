package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLockMutualExclusion(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	first := NewRedisLock(client, "run:weekday-promo", time.Minute)
	second := NewRedisLock(client, "run:weekday-promo", time.Minute)

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second holder acquired a held lock")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseRequiresOwnership(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	owner := NewRedisLock(client, "run:weekday-promo", time.Minute)
	intruder := NewRedisLock(client, "run:weekday-promo", time.Minute)

	if ok, _ := owner.Acquire(ctx); !ok {
		t.Fatal("owner could not acquire")
	}
	// A release by a non-owner must leave the lock in place.
	if err := intruder.Release(ctx); err != nil {
		t.Fatalf("intruder release: %v", err)
	}
	if ok, _ := intruder.Acquire(ctx); ok {
		t.Fatal("lock was freed by a non-owner")
	}
}

func TestRedisLockKeysAreScoped(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	a := NewRedisLock(client, "run:weekday-promo", time.Minute)
	b := NewRedisLock(client, "run:holiday-blast", time.Minute)

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("acquire a")
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("a held lock blocked an unrelated campaign")
	}
}
