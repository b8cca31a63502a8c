// Package compliance implements the eligibility gate for outbound contact.
//
// The gate is a pure predicate layer over consent flags, quiet hours, the
// per-customer daily frequency cap, and the data-retention horizon. Checks
// run in a fixed order and short-circuit on the first failure so the denial
// reason is unambiguous. A denial is not an error; it is an audited outcome.
//
// The gate is the single source of truth for eligibility. Callers must not
// cache its verdict across a retry gap: a customer may opt out between the
// initial scan and a delayed retry, so the scheduler re-checks before every
// retry dispatch.
package compliance

import (
	"time"

	"github.com/twistylocks/outreach/internal/config"
	"github.com/twistylocks/outreach/internal/domain"
)

// Policy holds the configured compliance rules.
type Policy struct {
	QuietStartHour    int // start of the do-not-disturb window, local hour
	QuietEndHour      int // end of the window; may be "before" start (wraps midnight)
	MaxAttemptsPerDay int
	RetentionDays     int
	Location          *time.Location
}

// PolicyFromConfig builds a gate policy from app configuration.
func PolicyFromConfig(c config.ComplianceConfig, loc *time.Location) Policy {
	return Policy{
		QuietStartHour:    c.QuietStartHour,
		QuietEndHour:      c.QuietEndHour,
		MaxAttemptsPerDay: c.MaxAttemptsPerDay,
		RetentionDays:     c.RetentionDays,
		Location:          loc,
	}
}

// Gate evaluates per-customer contact eligibility.
type Gate struct {
	policy Policy
}

// NewGate creates a gate with the given policy. A nil location falls back
// to UTC.
func NewGate(p Policy) *Gate {
	if p.Location == nil {
		p.Location = time.UTC
	}
	return &Gate{policy: p}
}

// Check reports whether the customer may be contacted on the channel at the
// given instant. On denial the reason identifies the first failed rule.
//
// Check order: consent → quiet hours → daily cap → retention horizon.
func (g *Gate) Check(cust *domain.Customer, state *domain.ComplianceState, ch domain.Channel, now time.Time) (bool, domain.DenialReason) {
	if g.optedOut(cust, state, ch) {
		return false, domain.DenialOptedOut
	}

	local := now.In(g.policy.Location)
	if g.InQuietHours(local) {
		return false, domain.DenialQuietHours
	}

	day := local.Format("2006-01-02")
	if state != nil && state.AttemptsFor(day) >= g.policy.MaxAttemptsPerDay {
		return false, domain.DenialDailyCap
	}

	if g.consentStale(cust, state, now) {
		return false, domain.DenialStaleConsent
	}

	return true, domain.DenialNone
}

// optedOut prefers the compliance state record over the customer snapshot,
// since the outcome tracker writes opt-outs there first.
func (g *Gate) optedOut(cust *domain.Customer, state *domain.ComplianceState, ch domain.Channel) bool {
	if state != nil && state.OptedOut(ch) {
		return true
	}
	return cust.OptedOut(ch)
}

// InQuietHours reports whether the local time falls inside the configured
// do-not-disturb window. The window is a circular interval over the hours of
// the day: [start, end) when start < end, wrapping midnight when start > end
// (e.g. 20:00–09:00 covers 21:00 and 05:00 but not 10:00 or 19:59). Equal
// start and end means no quiet hours.
func (g *Gate) InQuietHours(local time.Time) bool {
	start, end := g.policy.QuietStartHour, g.policy.QuietEndHour
	if start == end {
		return false
	}
	h := local.Hour()
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// consentStale reports whether the customer's consent record has aged past
// the retention horizon. Stale records mean "unknown consent" and fail safe
// to ineligible. The freshest of the consent-change timestamps counts; a
// customer with no consent signal at all ages from their creation time.
func (g *Gate) consentStale(cust *domain.Customer, state *domain.ComplianceState, now time.Time) bool {
	if g.policy.RetentionDays <= 0 {
		return false
	}

	newest := cust.CreatedAt
	for _, ts := range []*time.Time{cust.CallConsentChangedAt, cust.SMSConsentChangedAt} {
		if ts != nil && ts.After(newest) {
			newest = *ts
		}
	}
	if state != nil && state.ConsentChangedAt != nil && state.ConsentChangedAt.After(newest) {
		newest = *state.ConsentChangedAt
	}

	horizon := time.Duration(g.policy.RetentionDays) * 24 * time.Hour
	return now.Sub(newest) > horizon
}
