// Package outcome consumes delivery results and inbound replies, and feeds
// consent changes back into the compliance state the gate reads.
package outcome

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/twistylocks/outreach/internal/config"
	"github.com/twistylocks/outreach/internal/domain"
	"github.com/twistylocks/outreach/internal/pkg/logger"
	"github.com/twistylocks/outreach/internal/store"
)

var (
	// ErrUnknownJob is returned when a result references no stored job.
	ErrUnknownJob = errors.New("unknown contact job")

	// ErrInvalidResult is returned for an unrecognized outcome result.
	ErrInvalidResult = errors.New("invalid outcome result")
)

// Tracker records job outcomes and opt-out signals.
type Tracker struct {
	store         store.Store
	keywords      []string
	cascadeOptOut bool
	now           func() time.Time
}

// NewTracker creates a tracker. Keywords are matched case-insensitively
// against trimmed inbound messages.
func NewTracker(s store.Store, cfg config.ComplianceConfig) *Tracker {
	keywords := make([]string, 0, len(cfg.OptOutKeywords))
	for _, k := range cfg.OptOutKeywords {
		keywords = append(keywords, strings.ToUpper(strings.TrimSpace(k)))
	}
	return &Tracker{
		store:         s,
		keywords:      keywords,
		cascadeOptOut: cfg.CascadeOptOut,
		now:           time.Now,
	}
}

// resultStatus maps a delivery result to the job's next status.
func resultStatus(result domain.OutcomeResult) domain.JobStatus {
	switch result {
	case domain.OutcomeDelivered, domain.OutcomeBooked, domain.OutcomeDeclined:
		return domain.JobCompleted
	default:
		// no-answer, invalid-number, opted-out-reply
		return domain.JobFailed
	}
}

// Record applies a delivery result to a job: a status history append, an
// opt-out flip when the customer replied with one, and a redemption count
// when the customer booked.
func (t *Tracker) Record(ctx context.Context, jobID string, result domain.OutcomeResult) error {
	if !result.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidResult, result)
	}

	job, err := t.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
		}
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	now := t.now()
	next := resultStatus(result)
	if !domain.CanTransition(job.Status, next) {
		// Late or duplicate webhook after the job already settled. The
		// history keeps what we have; nothing is overwritten.
		log.Printf("[Outcome] Ignoring %s for job %s in state %s", result, jobID, job.Status)
		return nil
	}

	job.Status = next
	job.History = append(job.History, domain.StatusChange{
		Status: next,
		Reason: string(result),
		At:     now,
	})
	if result == domain.OutcomeNoAnswer {
		// Nobody picked up, but the number works. Flag the job so a later
		// campaign can circle back instead of writing the customer off.
		job.FollowUp = true
	}
	if err := t.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save job %s: %w", jobID, err)
	}

	if result == domain.OutcomeOptedOut {
		if err := t.optOut(ctx, job.CustomerID, job.Channel, now); err != nil {
			return err
		}
	}
	if result == domain.OutcomeBooked {
		if err := t.store.IncrementRedemptions(ctx, job.PromotionID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("record redemption: %w", err)
		}
	}

	log.Printf("[Outcome] Job %s: %s → %s (%s)", jobID, job.History[len(job.History)-2].Status, next, result)
	return nil
}

// HandleInboundMessage inspects a free-text reply from a customer. A message
// matching any configured opt-out keyword (case-insensitive, trimmed)
// unconditionally triggers an opt-out on the channel, overriding any other
// reading of the message.
func (t *Tracker) HandleInboundMessage(ctx context.Context, customerID string, ch domain.Channel, body string) (bool, error) {
	if !t.IsOptOutMessage(body) {
		return false, nil
	}
	if err := t.optOut(ctx, customerID, ch, t.now()); err != nil {
		return false, err
	}
	return true, nil
}

// IsOptOutMessage reports whether the message matches an opt-out keyword.
func (t *Tracker) IsOptOutMessage(body string) bool {
	msg := strings.ToUpper(strings.TrimSpace(body))
	for _, k := range t.keywords {
		if msg == k {
			return true
		}
	}
	return false
}

// optOut flips the compliance state flag and mirrors it onto the customer
// record. With cascade enabled, an opt-out on one channel covers both.
func (t *Tracker) optOut(ctx context.Context, customerID string, ch domain.Channel, at time.Time) error {
	state, err := t.store.GetComplianceState(ctx, customerID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load compliance state: %w", err)
		}
		state = &domain.ComplianceState{CustomerID: customerID}
	}

	channels := []domain.Channel{ch}
	if t.cascadeOptOut {
		channels = []domain.Channel{domain.ChannelCall, domain.ChannelSMS}
	}
	for _, c := range channels {
		state.SetOptOut(c, at)
		if err := t.store.SetCustomerOptOut(ctx, customerID, c, at); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("persist customer opt-out: %w", err)
		}
	}

	if err := t.store.SaveComplianceState(ctx, state); err != nil {
		return fmt.Errorf("save compliance state: %w", err)
	}
	logger.Info("customer opted out", "customer_id", customerID, "channels", channels)
	return nil
}
