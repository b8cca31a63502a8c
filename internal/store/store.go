// Package store defines the persistence interfaces for the outreach engine
// and an in-memory implementation used by tests and single-node trials.
//
// A campaign run treats the store as all-or-nothing: when any store call
// fails mid-run the run aborts cleanly rather than dispatching against
// half-loaded data. Implementations wrap transport-level failures in
// ErrUnavailable so callers can distinguish "record missing" from "backend
// down".
package store

import (
	"context"
	"errors"
	"time"

	"github.com/twistylocks/outreach/internal/domain"
)

var (
	// ErrNotFound signals a missing record, not a backend failure.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable signals the backend could not be reached or answered
	// with a transport-level failure. A run in progress must abort.
	ErrUnavailable = errors.New("store unavailable")
)

// CustomerStore provides the customer roster.
type CustomerStore interface {
	// ListActiveCustomers returns every customer eligible to enter a run.
	ListActiveCustomers(ctx context.Context) ([]domain.Customer, error)

	// GetCustomer returns one customer by ID.
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)

	// SetCustomerOptOut persists an opt-out flag on the customer record.
	SetCustomerOptOut(ctx context.Context, id string, ch domain.Channel, at time.Time) error
}

// CatalogStore provides the published promotion catalog.
type CatalogStore interface {
	// ListCatalog returns all promotions, including inactive ones; callers
	// filter by validity window.
	ListCatalog(ctx context.Context) ([]domain.Promotion, error)

	// IncrementRedemptions bumps a promotion's redemption counter.
	IncrementRedemptions(ctx context.Context, promotionID string) error
}

// ComplianceStore holds per-customer compliance state.
type ComplianceStore interface {
	// GetComplianceState returns the customer's state, or ErrNotFound when
	// the customer has never been tracked.
	GetComplianceState(ctx context.Context, customerID string) (*domain.ComplianceState, error)

	// SaveComplianceState upserts the state record.
	SaveComplianceState(ctx context.Context, state *domain.ComplianceState) error
}

// JobStore persists contact jobs and their append-only status history.
type JobStore interface {
	// SaveJob upserts the job row together with its history.
	SaveJob(ctx context.Context, job *domain.ContactJob) error

	// GetJob returns one job by ID.
	GetJob(ctx context.Context, id string) (*domain.ContactJob, error)

	// ListJobsForDay returns the campaign's jobs scheduled on the given
	// business day (YYYY-MM-DD). Used for duplicate suppression when a run
	// is re-triggered.
	ListJobsForDay(ctx context.Context, campaignID, day string) ([]domain.ContactJob, error)

	// QueryJobs returns jobs whose scheduled time falls in [from, to).
	QueryJobs(ctx context.Context, from, to time.Time) ([]domain.ContactJob, error)
}

// RunStore persists per-run summaries for reporting.
type RunStore interface {
	SaveRunSummary(ctx context.Context, summary *domain.RunSummary) error
	ListRunSummaries(ctx context.Context, from, to time.Time) ([]domain.RunSummary, error)
}

// Store aggregates every persistence concern behind one handle.
type Store interface {
	CustomerStore
	CatalogStore
	ComplianceStore
	JobStore
	RunStore
}
