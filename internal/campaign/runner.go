// Package campaign orchestrates promotional contact runs.
//
// A run is a one-directional state machine:
//
//	Collecting → Filtering → Queuing → Dispatching → Draining → Completed
//
// Collecting and Filtering are all-or-nothing: a store failure there aborts
// the run with zero jobs emitted. From Queuing onward jobs are persisted
// before dispatch, so a crashed or cancelled run can be resumed by the next
// invocation without double-contacting anyone.
//
// Cancellation is cooperative and takes effect at state boundaries and
// between dispatches: in-flight sends complete, undispatched jobs stay
// pending for a later run.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/twistylocks/outreach/internal/attempts"
	"github.com/twistylocks/outreach/internal/compliance"
	"github.com/twistylocks/outreach/internal/config"
	"github.com/twistylocks/outreach/internal/domain"
	"github.com/twistylocks/outreach/internal/message"
	"github.com/twistylocks/outreach/internal/pkg/distlock"
	"github.com/twistylocks/outreach/internal/promotion"
	"github.com/twistylocks/outreach/internal/segment"
	"github.com/twistylocks/outreach/internal/store"
	"github.com/twistylocks/outreach/internal/transport"
)

// RunState names a phase of the campaign state machine.
type RunState string

const (
	StateCollecting  RunState = "collecting"
	StateFiltering   RunState = "filtering"
	StateQueuing     RunState = "queuing"
	StateDispatching RunState = "dispatching"
	StateDraining    RunState = "draining"
	StateCompleted   RunState = "completed"
	StateAborted     RunState = "aborted"
)

// ErrRunInProgress is returned when another run holds the campaign lock.
var ErrRunInProgress = errors.New("campaign run already in progress")

// LockFactory builds a distributed lock for a campaign run. Nil means no
// cross-process locking (single-node deployments and tests).
type LockFactory func(key string, ttl time.Duration) distlock.DistLock

// Deps wires the runner's collaborators.
type Deps struct {
	Store      store.Store
	Counter    attempts.Counter
	Sender     transport.Sender
	Renderer   *message.Renderer
	Gate       *compliance.Gate
	Classifier *segment.Classifier
	Ranker     *promotion.Ranker
	Lock       LockFactory
}

// Runner executes campaign runs. One Runner serves many runs; each Run call
// is an independent state machine invocation.
type Runner struct {
	deps Deps

	slotHours  []int
	channel    domain.Channel
	capPerDay  int
	workers    int
	perSecond  float64
	maxRetries int
	cooldown   time.Duration
	lockTTL    time.Duration
	loc        *time.Location

	// Overridable in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a runner from configuration.
func NewRunner(cfg *config.Config, deps Deps) *Runner {
	c := cfg.Campaign
	workers := c.DispatchWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		deps:       deps,
		slotHours:  append([]int(nil), c.SlotHours...),
		channel:    domain.Channel(c.DefaultChannel),
		capPerDay:  cfg.Compliance.MaxAttemptsPerDay,
		workers:    workers,
		perSecond:  c.DispatchPerSecond,
		maxRetries: c.MaxRetries,
		cooldown:   c.RetryCooldown(),
		lockTTL:    c.RunLockTTL(),
		loc:        cfg.Business.Location(),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// run carries the mutable state of one invocation.
type run struct {
	id         string
	campaignID string
	day        string
	startedAt  time.Time
	state      RunState

	customers []domain.Customer
	catalog   []domain.Promotion
	existing  map[string]*domain.ContactJob // customerID → today's job

	queue    []*domain.ContactJob
	deferred int

	mu      sync.Mutex
	retry   []*domain.ContactJob
	summary *domain.RunSummary
}

// Run executes one campaign run and returns its summary. The summary is also
// persisted and handed to reporting even when the run aborts.
func (r *Runner) Run(ctx context.Context, campaignID string) (*domain.RunSummary, error) {
	now := r.now().In(r.loc)
	rn := &run{
		id:         uuid.New().String(),
		campaignID: campaignID,
		day:        now.Format("2006-01-02"),
		startedAt:  now,
		state:      StateCollecting,
		existing:   make(map[string]*domain.ContactJob),
		summary: &domain.RunSummary{
			CampaignID:   campaignID,
			StartedAt:    now,
			StatusCounts: make(map[domain.JobStatus]int),
			Denials:      make(map[domain.DenialReason]int),
		},
	}
	rn.summary.RunID = rn.id

	if r.deps.Lock != nil {
		lock := r.deps.Lock("campaign:"+campaignID, r.lockTTL)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		defer lock.Release(context.Background())
	}

	log.Printf("[Campaign] Run %s starting for %s on %s", rn.id, campaignID, rn.day)

	err := r.execute(ctx, rn)
	rn.summary.FinishedAt = r.now().In(r.loc)
	if err != nil {
		rn.summary.Aborted = true
		rn.summary.AbortReason = err.Error()
		log.Printf("[Campaign] Run %s aborted in %s: %v", rn.id, rn.state, err)
	} else {
		log.Printf("[Campaign] Run %s completed: queued=%d deferred=%d statuses=%v denials=%v",
			rn.id, rn.summary.Queued, rn.summary.Deferred, rn.summary.StatusCounts, rn.summary.Denials)
	}

	// Best effort: an unreachable store must not eat the summary we already
	// have in hand.
	if saveErr := r.deps.Store.SaveRunSummary(context.Background(), rn.summary); saveErr != nil {
		log.Printf("[Campaign] Run %s summary not persisted: %v", rn.id, saveErr)
	}
	return rn.summary, err
}

func (r *Runner) execute(ctx context.Context, rn *run) error {
	for _, step := range []struct {
		state RunState
		fn    func(context.Context, *run) error
	}{
		{StateCollecting, r.collect},
		{StateFiltering, r.filter},
		{StateQueuing, r.enqueue},
		{StateDispatching, r.dispatch},
		{StateDraining, r.drain},
	} {
		if err := ctx.Err(); err != nil {
			rn.state = StateAborted
			return fmt.Errorf("cancelled before %s: %w", step.state, err)
		}
		rn.state = step.state
		if err := step.fn(ctx, rn); err != nil {
			rn.state = StateAborted
			return err
		}
	}
	rn.state = StateCompleted
	return nil
}

// collect pulls the customer roster, the catalog, and today's existing jobs.
// Any failure here aborts the run before a single job exists.
func (r *Runner) collect(ctx context.Context, rn *run) error {
	customers, err := r.deps.Store.ListActiveCustomers(ctx)
	if err != nil {
		return fmt.Errorf("collect customers: %w", err)
	}
	catalog, err := r.deps.Store.ListCatalog(ctx)
	if err != nil {
		return fmt.Errorf("collect catalog: %w", err)
	}
	existing, err := r.deps.Store.ListJobsForDay(ctx, rn.campaignID, rn.day)
	if err != nil {
		return fmt.Errorf("collect job history: %w", err)
	}

	rn.customers = customers
	rn.catalog = catalog
	for i := range existing {
		j := existing[i]
		rn.existing[j.CustomerID] = &j
	}
	rn.summary.Collected = len(customers)
	return nil
}

// filter classifies each customer, applies the compliance gate, and selects
// the best promotion. Survivors become candidates; everyone else is dropped
// with a recorded denial reason.
func (r *Runner) filter(ctx context.Context, rn *run) error {
	now := r.now().In(r.loc)
	var candidates []domain.ContactCandidate

	for i := range rn.customers {
		cust := &rn.customers[i]

		// Customers with a sent or completed job today are never re-queued,
		// regardless of how the run was triggered.
		if prior, ok := rn.existing[cust.ID]; ok {
			if prior.Status == domain.JobSent || prior.Status == domain.JobCompleted {
				rn.summary.Denials[domain.DenialAlreadySent]++
				continue
			}
		}

		state, err := r.deps.Store.GetComplianceState(ctx, cust.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("compliance state for %s: %w", cust.ID, err)
		}

		ok, reason := r.deps.Gate.Check(cust, state, r.channel, now)
		if !ok {
			rn.summary.Denials[reason]++
			continue
		}

		seg := r.deps.Classifier.Classify(*cust, now)
		best := r.deps.Ranker.SelectBest(cust, seg, rn.catalog, now)
		if best == nil {
			rn.summary.Denials[domain.DenialNoPromotion]++
			continue
		}

		candidates = append(candidates, domain.ContactCandidate{
			Customer:  *cust,
			Promotion: *best,
			Segment:   seg,
			Score:     r.deps.Ranker.Score(cust, seg, best, now),
		})
	}

	rn.queue = r.buildJobs(rn, candidates)
	return nil
}

// buildJobs turns candidates into jobs with scheduled slots, highest score
// first, and folds in today's resumable jobs from earlier runs.
func (r *Runner) buildJobs(rn *run, candidates []domain.ContactCandidate) []*domain.ContactJob {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Customer.ID < b.Customer.ID
	})

	now := r.now().In(r.loc)
	slots := r.slotTimes(now)

	var jobs []*domain.ContactJob
	for i, cand := range candidates {
		// A pending or retried job from an earlier run today resumes as-is.
		if prior, ok := rn.existing[cand.Customer.ID]; ok {
			jobs = append(jobs, prior)
			continue
		}

		scheduled, deferredToTomorrow := r.assignSlot(slots, i, now)
		job := &domain.ContactJob{
			ID:            uuid.New().String(),
			CampaignID:    rn.campaignID,
			CustomerID:    cand.Customer.ID,
			PromotionID:   cand.Promotion.ID,
			Segment:       cand.Segment,
			Channel:       r.channel,
			Score:         cand.Score,
			ScheduledTime: scheduled,
			AttemptNumber: 0,
			Status:        domain.JobPending,
			CreatedAt:     now,
			History: []domain.StatusChange{
				{Status: domain.JobPending, At: now},
			},
		}
		if deferredToTomorrow {
			rn.deferred++
		}
		jobs = append(jobs, job)
	}
	rn.summary.Deferred = rn.deferred
	return jobs
}

// slotTimes returns today's contact slots that have not fully passed, in
// chronological order.
func (r *Runner) slotTimes(now time.Time) []time.Time {
	var out []time.Time
	for _, h := range r.slotHours {
		slot := time.Date(now.Year(), now.Month(), now.Day(), h, 0, 0, 0, r.loc)
		// A slot stays usable for an hour past its start.
		if now.Before(slot.Add(time.Hour)) {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// assignSlot spreads candidates round-robin across today's remaining slots.
// With no slot left today the candidate is deferred to tomorrow's first slot;
// it is queued, not dropped, and tomorrow's run resumes it.
func (r *Runner) assignSlot(slots []time.Time, idx int, now time.Time) (time.Time, bool) {
	if len(slots) > 0 {
		return slots[idx%len(slots)], false
	}
	first := r.slotHours[0]
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), first, 0, 0, 0, r.loc), true
}

// enqueue persists every job before any dispatch happens.
func (r *Runner) enqueue(ctx context.Context, rn *run) error {
	for _, job := range rn.queue {
		if err := r.deps.Store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("queue job %s: %w", job.ID, err)
		}
	}
	rn.summary.Queued = len(rn.queue)
	return nil
}
