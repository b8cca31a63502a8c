package domain

import "time"

// ReportPeriod selects the aggregation window for a report.
type ReportPeriod string

const (
	PeriodDaily  ReportPeriod = "daily"
	PeriodWeekly ReportPeriod = "weekly"
)

// Valid reports whether p is a known report period.
func (p ReportPeriod) Valid() bool {
	return p == PeriodDaily || p == PeriodWeekly
}

// PromotionStats summarizes job outcomes for a single promotion.
type PromotionStats struct {
	PromotionID   string `json:"promotion_id"`
	PromotionName string `json:"promotion_name"`
	Jobs          int    `json:"jobs"`
	Sent          int    `json:"sent"`
	Completed     int    `json:"completed"`
	Failed        int    `json:"failed"`
	Booked        int    `json:"booked"`
	Declined      int    `json:"declined"`
}

// RunSummary is the terminal accounting of a single campaign run, handed to
// the report aggregator when the run completes or aborts.
type RunSummary struct {
	RunID        string               `json:"run_id"`
	CampaignID   string               `json:"campaign_id"`
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   time.Time            `json:"finished_at"`
	Aborted      bool                 `json:"aborted"`
	AbortReason  string               `json:"abort_reason,omitempty"`
	Collected    int                  `json:"collected"`
	Queued       int                  `json:"queued"`
	Deferred     int                  `json:"deferred"`
	StatusCounts map[JobStatus]int    `json:"status_counts"`
	Denials      map[DenialReason]int `json:"denials"`
}

// Report is a periodic rollup of contact jobs and outcomes. It is derived
// entirely from the append-only job history; there are no running counters
// that could drift from the source records.
type Report struct {
	Period      ReportPeriod         `json:"period"`
	From        time.Time            `json:"from"`
	To          time.Time            `json:"to"`
	GeneratedAt time.Time            `json:"generated_at"`
	TotalJobs   int                  `json:"total_jobs"`
	ByStatus    map[JobStatus]int    `json:"by_status"`
	ByChannel   map[Channel]int      `json:"by_channel"`
	ByPromotion []PromotionStats     `json:"by_promotion"`
	Denials     map[DenialReason]int `json:"denials"`
	Bookings    int                  `json:"bookings"`
	OptOuts     int                  `json:"opt_outs"`
	FollowUps   int                  `json:"follow_ups"`
	AbortedRuns []RunSummary         `json:"aborted_runs,omitempty"`
}
