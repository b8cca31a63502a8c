package attempts

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisCounter(t *testing.T) *RedisCounter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCounter(client)
}

// Both implementations must satisfy the same contract.
func counters(t *testing.T) map[string]Counter {
	return map[string]Counter{
		"memory": NewMemoryCounter(),
		"redis":  newTestRedisCounter(t),
	}
}

func TestReserveUpToCap(t *testing.T) {
	for name, c := range counters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 2; i++ {
				ok, err := c.Reserve(ctx, "cust-1", "2026-08-20", 2)
				if err != nil {
					t.Fatalf("Reserve: %v", err)
				}
				if !ok {
					t.Fatalf("reservation %d denied below cap", i+1)
				}
			}

			ok, err := c.Reserve(ctx, "cust-1", "2026-08-20", 2)
			if err != nil {
				t.Fatalf("Reserve: %v", err)
			}
			if ok {
				t.Fatal("reservation above cap allowed")
			}

			n, err := c.Current(ctx, "cust-1", "2026-08-20")
			if err != nil {
				t.Fatalf("Current: %v", err)
			}
			if n != 2 {
				t.Fatalf("Current = %d, want 2", n)
			}
		})
	}
}

func TestReserveKeysAreIndependent(t *testing.T) {
	for name, c := range counters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if ok, _ := c.Reserve(ctx, "cust-1", "2026-08-20", 1); !ok {
				t.Fatal("first reservation denied")
			}
			if ok, _ := c.Reserve(ctx, "cust-1", "2026-08-20", 1); ok {
				t.Fatal("same key should be capped")
			}
			// Different customer, different day: fresh counters.
			if ok, _ := c.Reserve(ctx, "cust-2", "2026-08-20", 1); !ok {
				t.Fatal("other customer blocked by cust-1's counter")
			}
			if ok, _ := c.Reserve(ctx, "cust-1", "2026-08-21", 1); !ok {
				t.Fatal("next-day reservation blocked by yesterday's counter")
			}
		})
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	for name, c := range counters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := c.Release(ctx, "cust-1", "2026-08-20"); err != nil {
				t.Fatalf("Release on empty counter: %v", err)
			}
			n, _ := c.Current(ctx, "cust-1", "2026-08-20")
			if n != 0 {
				t.Fatalf("Current = %d after release on empty, want 0", n)
			}

			c.Reserve(ctx, "cust-1", "2026-08-20", 2)
			c.Release(ctx, "cust-1", "2026-08-20")
			if ok, _ := c.Reserve(ctx, "cust-1", "2026-08-20", 1); !ok {
				t.Fatal("released slot not reusable")
			}
		})
	}
}

// Under concurrent reservation the cap must hold exactly: with cap N and many
// racing goroutines, exactly N succeed.
func TestReserveConcurrentCap(t *testing.T) {
	for name, c := range counters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const workers = 20
			const capPerDay = 2

			var granted int64
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := c.Reserve(ctx, "cust-1", "2026-08-20", capPerDay)
					if err != nil {
						t.Errorf("Reserve: %v", err)
						return
					}
					if ok {
						atomic.AddInt64(&granted, 1)
					}
				}()
			}
			wg.Wait()

			if granted != capPerDay {
				t.Fatalf("granted %d reservations, want exactly %d", granted, capPerDay)
			}
		})
	}
}
