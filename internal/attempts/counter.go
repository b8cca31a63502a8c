// Package attempts provides the keyed per-customer daily attempt counter.
//
// The counter is the one piece of cross-job shared mutable state in a
// campaign run. Reservations use increment-if-below-cap semantics so two
// concurrent dispatch paths can never both read "under cap" and both write:
// the check and the increment are a single atomic step in every
// implementation.
package attempts

import (
	"context"
	"sync"
)

// Counter reserves contact attempts against the per-customer daily cap.
// Keys are (customerID, business day). Implementations must be safe for
// concurrent use.
type Counter interface {
	// Reserve atomically increments the customer's counter for the day if
	// the result would not exceed capPerDay. Returns true when the slot was
	// reserved.
	Reserve(ctx context.Context, customerID, day string, capPerDay int) (bool, error)

	// Release undoes one reservation, e.g. when a reserved dispatch is
	// suppressed before any attempt reaches the transport. The counter
	// never goes negative.
	Release(ctx context.Context, customerID, day string) error

	// Current returns the customer's attempt count for the day.
	Current(ctx context.Context, customerID, day string) (int, error)
}

// MemoryCounter is a process-local Counter for tests and single-node runs.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryCounter creates an empty in-memory counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int)}
}

func key(customerID, day string) string {
	return customerID + "|" + day
}

// Reserve implements Counter.
func (m *MemoryCounter) Reserve(_ context.Context, customerID, day string, capPerDay int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(customerID, day)
	if m.counts[k]+1 > capPerDay {
		return false, nil
	}
	m.counts[k]++
	return true, nil
}

// Release implements Counter.
func (m *MemoryCounter) Release(_ context.Context, customerID, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(customerID, day)
	if m.counts[k] > 0 {
		m.counts[k]--
	}
	return nil
}

// Current implements Counter.
func (m *MemoryCounter) Current(_ context.Context, customerID, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key(customerID, day)], nil
}
