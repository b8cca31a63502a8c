package domain

import "time"

// DenialReason explains why the compliance gate excluded a customer. A denial
// is not an error; it is recorded for audit and surfaced in reports.
type DenialReason string

const (
	DenialNone         DenialReason = ""
	DenialOptedOut     DenialReason = "opted_out"
	DenialQuietHours   DenialReason = "quiet_hours"
	DenialDailyCap     DenialReason = "daily_cap"
	DenialStaleConsent DenialReason = "stale_consent"
	DenialNoPromotion  DenialReason = "no_eligible_promotion"
	DenialAlreadySent  DenialReason = "already_contacted_today"
)

// ComplianceState is the per-customer derived state read by the compliance
// gate and written by the outcome tracker. AttemptsToday resets at midnight
// in the business timezone and never goes negative.
type ComplianceState struct {
	CustomerID       string     `json:"customer_id" db:"customer_id"`
	OptOutCalls      bool       `json:"opt_out_calls" db:"opt_out_calls"`
	OptOutSMS        bool       `json:"opt_out_sms" db:"opt_out_sms"`
	AttemptsToday    int        `json:"attempts_today" db:"attempts_today"`
	AttemptsDay      string     `json:"attempts_day" db:"attempts_day"` // YYYY-MM-DD in business tz
	LastAttemptAt    *time.Time `json:"last_attempt_at" db:"last_attempt_at"`
	ConsentChangedAt *time.Time `json:"consent_changed_at" db:"consent_changed_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// OptedOut reports whether the state records an opt-out for the channel.
func (s *ComplianceState) OptedOut(ch Channel) bool {
	switch ch {
	case ChannelCall:
		return s.OptOutCalls
	case ChannelSMS:
		return s.OptOutSMS
	}
	return true
}

// SetOptOut flips the opt-out flag for one channel and stamps the change.
func (s *ComplianceState) SetOptOut(ch Channel, at time.Time) {
	switch ch {
	case ChannelCall:
		s.OptOutCalls = true
	case ChannelSMS:
		s.OptOutSMS = true
	}
	t := at
	s.ConsentChangedAt = &t
}

// AttemptsFor returns the attempt count for the given business day, treating
// a stale counter from a previous day as zero (the midnight reset).
func (s *ComplianceState) AttemptsFor(day string) int {
	if s.AttemptsDay != day {
		return 0
	}
	if s.AttemptsToday < 0 {
		return 0
	}
	return s.AttemptsToday
}
