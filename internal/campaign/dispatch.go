package campaign

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/twistylocks/outreach/internal/domain"
	"github.com/twistylocks/outreach/internal/pkg/logger"
	"github.com/twistylocks/outreach/internal/store"
	"github.com/twistylocks/outreach/internal/transport"
)

// dispatch emits today's jobs slot by slot. Slots run sequentially: a later
// slot never starts before the earlier slot's pass has fully finished. Within
// a slot, jobs dispatch highest score first through a bounded worker pool.
func (r *Runner) dispatch(ctx context.Context, rn *run) error {
	slots := r.groupBySlot(rn)

	for i, slot := range slots {
		if ctx.Err() != nil {
			// Cooperative stop: undispatched jobs stay pending.
			log.Printf("[Campaign] Run %s cancelled, %d slot(s) left undispatched", rn.id, len(slots)-i)
			return nil
		}

		wait := slot.at.Sub(r.now().In(r.loc))
		if wait > 0 {
			log.Printf("[Campaign] Run %s waiting %s for slot %s", rn.id, wait.Round(time.Second), slot.at.Format("15:04"))
			if err := r.sleep(ctx, wait); err != nil {
				return nil
			}
		}

		r.dispatchSlot(ctx, rn, slot.jobs)
	}
	return nil
}

type slotGroup struct {
	at   time.Time
	jobs []*domain.ContactJob
}

// groupBySlot buckets today's dispatchable jobs by scheduled time, ordered
// chronologically with jobs sorted by priority score descending. Jobs
// deferred to a later day are left for that day's run.
func (r *Runner) groupBySlot(rn *run) []slotGroup {
	byTime := make(map[time.Time][]*domain.ContactJob)
	for _, job := range rn.queue {
		if job.Status != domain.JobPending && job.Status != domain.JobRetried {
			continue
		}
		if job.ScheduledTime.In(r.loc).Format("2006-01-02") != rn.day {
			continue
		}
		key := job.ScheduledTime.In(r.loc)
		byTime[key] = append(byTime[key], job)
	}

	out := make([]slotGroup, 0, len(byTime))
	for at, jobs := range byTime {
		sort.Slice(jobs, func(i, j int) bool {
			if jobs[i].Score != jobs[j].Score {
				return jobs[i].Score > jobs[j].Score
			}
			return jobs[i].ID < jobs[j].ID
		})
		out = append(out, slotGroup{at: at, jobs: jobs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

func (r *Runner) newLimiter() *rate.Limiter {
	if r.perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(r.perSecond), 1)
}

// dispatchSlot runs one slot's jobs through the worker pool. In-flight sends
// always complete; cancellation only stops the feed.
func (r *Runner) dispatchSlot(ctx context.Context, rn *run, jobs []*domain.ContactJob) {
	limiter := r.newLimiter()
	work := make(chan *domain.ContactJob)
	var wg sync.WaitGroup

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range work {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				r.attempt(ctx, rn, job)
			}
		}()
	}

feed:
	for _, job := range jobs {
		select {
		case work <- job:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()
}

// attempt executes one transport attempt for a job: gate recheck, cap
// reservation, render, send, and the resulting status transition.
func (r *Runner) attempt(ctx context.Context, rn *run, job *domain.ContactJob) {
	now := r.now().In(r.loc)

	cust, err := r.deps.Store.GetCustomer(ctx, job.CustomerID)
	if err != nil {
		r.transition(rn, job, domain.JobFailed, fmt.Sprintf("customer lookup: %v", err), now)
		return
	}
	state, err := r.deps.Store.GetComplianceState(ctx, job.CustomerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		r.transition(rn, job, domain.JobFailed, fmt.Sprintf("compliance lookup: %v", err), now)
		return
	}

	// Eligibility can change between queuing and dispatch (and between
	// retries): the gate verdict is never cached across that gap.
	if ok, reason := r.deps.Gate.Check(cust, state, job.Channel, now); !ok {
		rn.mu.Lock()
		rn.summary.Denials[reason]++
		rn.mu.Unlock()
		r.transition(rn, job, domain.JobSuppressed, string(reason), now)
		return
	}

	reserved, err := r.deps.Counter.Reserve(ctx, job.CustomerID, rn.day, r.capPerDay)
	if err != nil {
		r.transition(rn, job, domain.JobFailed, fmt.Sprintf("cap reservation: %v", err), now)
		return
	}
	if !reserved {
		// Lost the cap race to a concurrent attempt.
		rn.mu.Lock()
		rn.summary.Denials[domain.DenialDailyCap]++
		rn.mu.Unlock()
		r.transition(rn, job, domain.JobSuppressed, string(domain.DenialDailyCap), now)
		return
	}

	promo := rn.promotionByID(job.PromotionID)
	if promo == nil {
		r.deps.Counter.Release(ctx, job.CustomerID, rn.day)
		rn.mu.Lock()
		rn.summary.Denials[domain.DenialNoPromotion]++
		rn.mu.Unlock()
		r.transition(rn, job, domain.JobSuppressed, string(domain.DenialNoPromotion), now)
		return
	}

	body, err := r.deps.Renderer.Render(job.Channel, cust, promo)
	if err != nil {
		r.deps.Counter.Release(ctx, job.CustomerID, rn.day)
		r.transition(rn, job, domain.JobFailed, fmt.Sprintf("render: %v", err), now)
		return
	}

	job.AttemptNumber++
	_, sendErr := r.deps.Sender.Send(ctx, job.Channel, transport.Message{
		JobID: job.ID,
		To:    cust.Phone,
		Body:  body,
	})

	r.recordAttempt(ctx, cust.ID, rn.day, now)

	switch {
	case sendErr == nil:
		// Audit event for log shipping; the phone is redacted on output.
		logger.Info("delivery attempt accepted",
			"job_id", job.ID,
			"channel", job.Channel,
			"phone", cust.Phone,
			"attempt", job.AttemptNumber)
		r.transition(rn, job, domain.JobSent, "", now)

	case transport.Permanent(sendErr):
		// Bad destination. Retrying cannot help; flag for data cleanup.
		log.Printf("[Campaign] Permanent failure for %s: %v", job.ID, sendErr)
		r.transition(rn, job, domain.JobFailed, sendErr.Error(), now)

	case job.AttemptNumber <= r.maxRetries:
		log.Printf("[Campaign] Transient failure for %s (attempt %d), will retry: %v",
			job.ID, job.AttemptNumber, sendErr)
		r.transition(rn, job, domain.JobRetried, sendErr.Error(), now)
		rn.mu.Lock()
		rn.retry = append(rn.retry, job)
		rn.mu.Unlock()

	default:
		log.Printf("[Campaign] Retries exhausted for %s: %v", job.ID, sendErr)
		r.transition(rn, job, domain.JobFailed, sendErr.Error(), now)
	}
}

// recordAttempt mirrors the counter into the persistent compliance state.
// The state is re-fetched here rather than reusing the pre-send snapshot, so
// an opt-out recorded while the send was in flight is never clobbered.
func (r *Runner) recordAttempt(ctx context.Context, customerID, day string, now time.Time) {
	state, err := r.deps.Store.GetComplianceState(ctx, customerID)
	if err != nil || state == nil {
		state = &domain.ComplianceState{CustomerID: customerID}
	}
	count, err := r.deps.Counter.Current(ctx, customerID, day)
	if err != nil {
		count = state.AttemptsFor(day) + 1
	}
	state.AttemptsToday = count
	state.AttemptsDay = day
	ts := now
	state.LastAttemptAt = &ts
	if err := r.deps.Store.SaveComplianceState(ctx, state); err != nil {
		log.Printf("[Campaign] Compliance state for %s not persisted: %v", customerID, err)
	}
}

// transition appends a status change, persists the job, and keeps history
// append-only. Illegal transitions are a bug; they are logged and skipped
// rather than corrupting the audit trail.
func (r *Runner) transition(rn *run, job *domain.ContactJob, to domain.JobStatus, reason string, at time.Time) {
	if !domain.CanTransition(job.Status, to) {
		log.Printf("[Campaign] Illegal transition %s → %s for job %s", job.Status, to, job.ID)
		return
	}
	job.Status = to
	job.History = append(job.History, domain.StatusChange{Status: to, Reason: reason, At: at})
	if err := r.deps.Store.SaveJob(context.Background(), job); err != nil {
		log.Printf("[Campaign] Job %s not persisted after %s: %v", job.ID, to, err)
	}
}

// drain retries transient failures. Each round waits out the cooldown, then
// re-attempts every queued retry; the gate recheck inside attempt covers
// opt-outs that arrived during the cooldown.
func (r *Runner) drain(ctx context.Context, rn *run) error {
	for {
		rn.mu.Lock()
		pending := rn.retry
		rn.retry = nil
		rn.mu.Unlock()
		if len(pending) == 0 {
			break
		}
		if err := r.sleep(ctx, r.cooldown); err != nil {
			// Cancelled mid-cooldown: retries stay in their retried state
			// and surface through reporting.
			break
		}
		for _, job := range pending {
			if ctx.Err() != nil {
				break
			}
			r.attempt(ctx, rn, job)
		}
	}

	r.tallyStatuses(rn)
	return nil
}

func (r *Runner) tallyStatuses(rn *run) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	for _, job := range rn.queue {
		rn.summary.StatusCounts[job.Status]++
	}
}

func (rn *run) promotionByID(id string) *domain.Promotion {
	for i := range rn.catalog {
		if rn.catalog[i].ID == id {
			return &rn.catalog[i]
		}
	}
	return nil
}
