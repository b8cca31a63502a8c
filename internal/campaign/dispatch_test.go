package campaign

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/twistylocks/outreach/internal/attempts"
	"github.com/twistylocks/outreach/internal/domain"
	"github.com/twistylocks/outreach/internal/store"
	"github.com/twistylocks/outreach/internal/transport"
)

// flakySender fails the first n sends with a transient error, then accepts.
// An optional hook runs after each failure, standing in for events that
// arrive during the retry cooldown.
type flakySender struct {
	mu       sync.Mutex
	failures int
	calls    int
	onFail   func()
}

func (f *flakySender) Send(_ context.Context, _ domain.Channel, msg transport.Message) (*transport.DeliveryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		if f.onFail != nil {
			f.onFail()
		}
		return nil, errors.New("provider timeout")
	}
	return &transport.DeliveryResult{ProviderID: fmt.Sprintf("ok-%d", f.calls), AcceptedAt: time.Now()}, nil
}

func (f *flakySender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunRetriesTransientFailure(t *testing.T) {
	cfg := testConfig()
	mem := store.NewMemory()
	mem.SeedCustomers(vip())
	mem.SeedPromotions(activePromo())
	sender := &flakySender{failures: 1}

	r := newTestRunner(cfg, mem, attempts.NewMemoryCounter(), sender)
	summary, err := r.Run(context.Background(), "weekday-promo")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sender.count() != 2 {
		t.Fatalf("transport attempts = %d, want 2 (initial + retry)", sender.count())
	}
	if summary.StatusCounts[domain.JobSent] != 1 {
		t.Fatalf("status counts = %v, want one sent", summary.StatusCounts)
	}

	jobs, _ := mem.ListJobsForDay(context.Background(), "weekday-promo", "2026-08-20")
	job := jobs[0]
	if job.AttemptNumber != 2 {
		t.Errorf("attempt number = %d, want 2", job.AttemptNumber)
	}
	wantHistory := []domain.JobStatus{domain.JobPending, domain.JobRetried, domain.JobSent}
	if len(job.History) != len(wantHistory) {
		t.Fatalf("history = %v", job.History)
	}
	for i, want := range wantHistory {
		if job.History[i].Status != want {
			t.Errorf("history[%d] = %s, want %s", i, job.History[i].Status, want)
		}
	}
}

func TestRunExhaustsRetries(t *testing.T) {
	cfg := testConfig()
	cfg.Compliance.MaxAttemptsPerDay = 5 // keep the cap out of the way
	mem := store.NewMemory()
	mem.SeedCustomers(vip())
	mem.SeedPromotions(activePromo())
	sender := &flakySender{failures: 100}

	r := newTestRunner(cfg, mem, attempts.NewMemoryCounter(), sender)
	summary, err := r.Run(context.Background(), "weekday-promo")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Initial attempt plus MaxRetries retries, then terminally failed.
	if sender.count() != 3 {
		t.Fatalf("transport attempts = %d, want 3", sender.count())
	}
	if summary.StatusCounts[domain.JobFailed] != 1 {
		t.Fatalf("status counts = %v, want one failed", summary.StatusCounts)
	}

	jobs, _ := mem.ListJobsForDay(context.Background(), "weekday-promo", "2026-08-20")
	if jobs[0].Status != domain.JobFailed {
		t.Fatalf("status = %s, want failed", jobs[0].Status)
	}
}

func TestRunPermanentFailureNotRetried(t *testing.T) {
	cfg := testConfig()
	mem := store.NewMemory()
	mem.SeedCustomers(vip())
	mem.SeedPromotions(activePromo())
	sender := transport.NewMockSender()
	sender.FailFor("+15551230042", fmt.Errorf("%w: invalid number", transport.ErrPermanent))

	r := newTestRunner(cfg, mem, attempts.NewMemoryCounter(), sender)
	summary, err := r.Run(context.Background(), "weekday-promo")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := len(sender.Calls()); got != 1 {
		t.Fatalf("transport attempts = %d, want 1 (no retry on permanent failure)", got)
	}
	if summary.StatusCounts[domain.JobFailed] != 1 {
		t.Fatalf("status counts = %v, want one failed", summary.StatusCounts)
	}
}

// An opt-out arriving during the retry cooldown must suppress the retry:
// the gate verdict is re-evaluated before every attempt.
func TestRunRetryRechecksGate(t *testing.T) {
	cfg := testConfig()
	mem := store.NewMemory()
	mem.SeedCustomers(vip())
	mem.SeedPromotions(activePromo())

	sender := &flakySender{failures: 100}
	sender.onFail = func() {
		state := &domain.ComplianceState{CustomerID: "vip-1"}
		state.SetOptOut(domain.ChannelCall, testNow)
		mem.SaveComplianceState(context.Background(), state)
	}

	r := newTestRunner(cfg, mem, attempts.NewMemoryCounter(), sender)
	summary, err := r.Run(context.Background(), "weekday-promo")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sender.count() != 1 {
		t.Fatalf("transport attempts = %d, want 1 (retry suppressed)", sender.count())
	}
	if summary.StatusCounts[domain.JobSuppressed] != 1 {
		t.Fatalf("status counts = %v, want one suppressed", summary.StatusCounts)
	}
	if summary.Denials[domain.DenialOptedOut] != 1 {
		t.Fatalf("denials = %v, want opted_out recorded", summary.Denials)
	}
}

// cancelSender cancels the run context from inside the first send, standing
// in for a shutdown arriving while a slot is in flight.
type cancelSender struct {
	cancel context.CancelFunc
}

func (c *cancelSender) Send(_ context.Context, _ domain.Channel, msg transport.Message) (*transport.DeliveryResult, error) {
	c.cancel()
	return &transport.DeliveryResult{ProviderID: "ok-" + msg.JobID, AcceptedAt: time.Now()}, nil
}

// A run cancelled between slots must log how many slots are actually left,
// not the day's full slot count.
func TestDispatchCancelledReportsRemainingSlots(t *testing.T) {
	cfg := testConfig()
	mem := store.NewMemory()
	mem.SeedCustomers(vip())
	mem.SeedPromotions(activePromo())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newTestRunner(cfg, mem, attempts.NewMemoryCounter(), &cancelSender{cancel: cancel})

	slot1 := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	rn := &run{
		id:      "run-1",
		day:     "2026-08-20",
		catalog: []domain.Promotion{activePromo()},
		queue: []*domain.ContactJob{
			{ID: "job-1", CustomerID: "vip-1", PromotionID: "promo-1",
				Channel: domain.ChannelCall, Status: domain.JobPending, ScheduledTime: slot1},
			{ID: "job-2", CustomerID: "vip-1", PromotionID: "promo-1",
				Channel: domain.ChannelCall, Status: domain.JobPending, ScheduledTime: slot1.Add(4 * time.Hour)},
		},
		summary: &domain.RunSummary{
			StatusCounts: make(map[domain.JobStatus]int),
			Denials:      make(map[domain.DenialReason]int),
		},
	}

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	if err := r.dispatch(ctx, rn); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.Contains(buf.String(), "1 slot(s) left undispatched") {
		t.Fatalf("cancellation log = %q, want one remaining slot reported", buf.String())
	}
}

// Within a slot, jobs must feed to the pool in descending score order.
func TestGroupBySlotOrdering(t *testing.T) {
	cfg := testConfig()
	mem := store.NewMemory()
	r := newTestRunner(cfg, mem, attempts.NewMemoryCounter(), transport.NewMockSender())

	slot := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	rn := &run{day: "2026-08-20", queue: []*domain.ContactJob{
		{ID: "low", Score: 10, Status: domain.JobPending, ScheduledTime: slot},
		{ID: "high", Score: 90, Status: domain.JobPending, ScheduledTime: slot},
		{ID: "mid", Score: 50, Status: domain.JobPending, ScheduledTime: slot},
		{ID: "done", Score: 99, Status: domain.JobCompleted, ScheduledTime: slot},
		{ID: "tomorrow", Score: 99, Status: domain.JobPending, ScheduledTime: slot.AddDate(0, 0, 1)},
	}}

	groups := r.groupBySlot(rn)
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	got := []string{groups[0].jobs[0].ID, groups[0].jobs[1].ID, groups[0].jobs[2].ID}
	want := []string{"high", "mid", "low"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slot order = %v, want %v", got, want)
		}
	}
	if len(groups[0].jobs) != 3 {
		t.Fatalf("terminal and next-day jobs must be excluded, got %d", len(groups[0].jobs))
	}
}
