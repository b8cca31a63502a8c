// Package report derives periodic rollups from the append-only job history
// and publishes them to the salon manager.
//
// Reports are pure derivations: re-running Summarize over the same stored
// history always yields the same report. There are no running counters to
// drift from the source records.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/twistylocks/outreach/internal/domain"
	"github.com/twistylocks/outreach/internal/store"
)

// Aggregator builds reports from stored jobs and run summaries.
type Aggregator struct {
	store store.Store
	loc   *time.Location
}

// NewAggregator creates an aggregator. A nil location falls back to UTC.
func NewAggregator(s store.Store, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{store: s, loc: loc}
}

// window returns [from, to) for the period ending at asOf: the current
// business day for daily reports, the trailing seven days for weekly.
func (a *Aggregator) window(period domain.ReportPeriod, asOf time.Time) (time.Time, time.Time) {
	local := asOf.In(a.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, a.loc)
	switch period {
	case domain.PeriodWeekly:
		return dayStart.AddDate(0, 0, -6), dayStart.AddDate(0, 0, 1)
	default:
		return dayStart, dayStart.AddDate(0, 0, 1)
	}
}

// Summarize builds the report for the period ending at asOf.
func (a *Aggregator) Summarize(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.Report, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("unknown report period %q", period)
	}
	from, to := a.window(period, asOf)

	jobs, err := a.store.QueryJobs(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	runs, err := a.store.ListRunSummaries(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	rep := &domain.Report{
		Period:      period,
		From:        from,
		To:          to,
		GeneratedAt: asOf,
		TotalJobs:   len(jobs),
		ByStatus:    make(map[domain.JobStatus]int),
		ByChannel:   make(map[domain.Channel]int),
		Denials:     make(map[domain.DenialReason]int),
	}

	byPromo := make(map[string]*domain.PromotionStats)
	for i := range jobs {
		job := &jobs[i]
		rep.ByStatus[job.Status]++
		rep.ByChannel[job.Channel]++
		if job.FollowUp {
			rep.FollowUps++
		}

		stats := byPromo[job.PromotionID]
		if stats == nil {
			stats = &domain.PromotionStats{PromotionID: job.PromotionID}
			byPromo[job.PromotionID] = stats
		}
		stats.Jobs++

		// Walk the full history: a completed job was also sent, and the
		// outcome reason lives on the terminal entry.
		for _, change := range job.History {
			switch change.Status {
			case domain.JobSent:
				stats.Sent++
			case domain.JobCompleted:
				stats.Completed++
				switch domain.OutcomeResult(change.Reason) {
				case domain.OutcomeBooked:
					stats.Booked++
					rep.Bookings++
				case domain.OutcomeDeclined:
					stats.Declined++
				}
			case domain.JobFailed:
				stats.Failed++
				// The opt-out reply itself. Jobs merely suppressed by an
				// existing opt-out are not new events; they land in Denials
				// via the run summary.
				if domain.OutcomeResult(change.Reason) == domain.OutcomeOptedOut {
					rep.OptOuts++
				}
			}
		}
	}

	names, err := a.promotionNames(ctx)
	if err != nil {
		return nil, err
	}
	for id, stats := range byPromo {
		stats.PromotionName = names[id]
		rep.ByPromotion = append(rep.ByPromotion, *stats)
	}
	sort.Slice(rep.ByPromotion, func(i, j int) bool {
		return rep.ByPromotion[i].PromotionID < rep.ByPromotion[j].PromotionID
	})

	for _, run := range runs {
		for reason, n := range run.Denials {
			rep.Denials[reason] += n
		}
		if run.Aborted {
			rep.AbortedRuns = append(rep.AbortedRuns, run)
		}
	}
	return rep, nil
}

func (a *Aggregator) promotionNames(ctx context.Context) (map[string]string, error) {
	catalog, err := a.store.ListCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog for report: %w", err)
	}
	names := make(map[string]string, len(catalog))
	for _, p := range catalog {
		names[p.ID] = p.Name
	}
	return names, nil
}
