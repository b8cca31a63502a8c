package transport

import (
	"context"
	"sync"
	"time"

	"github.com/twistylocks/outreach/internal/domain"
)

// MockSender is a scripted Sender for tests. Errors are dealt per-recipient;
// every call is recorded.
type MockSender struct {
	mu    sync.Mutex
	fail  map[string]error // keyed by Message.To
	calls []MockCall
}

// MockCall records one Send invocation.
type MockCall struct {
	Channel domain.Channel
	Message Message
}

// NewMockSender creates a sender that accepts everything.
func NewMockSender() *MockSender {
	return &MockSender{fail: make(map[string]error)}
}

// FailFor makes sends to the given number return err.
func (m *MockSender) FailFor(to string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[to] = err
}

// Send implements Sender.
func (m *MockSender) Send(ctx context.Context, ch domain.Channel, msg Message) (*DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Channel: ch, Message: msg})
	if err := m.fail[msg.To]; err != nil {
		return nil, err
	}
	return &DeliveryResult{ProviderID: "mock-" + msg.JobID, AcceptedAt: time.Now()}, nil
}

// Calls returns a copy of the recorded invocations.
func (m *MockSender) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}
