// Package segment classifies customers into marketing segments from their
// visit, spend, and recency attributes.
//
// Classification is a total, deterministic function: every customer snapshot
// maps to exactly one segment, and unknown or missing fields fall through to
// a defined default rather than an error. Thresholds come from configuration
// so segment boundaries can be retuned without a code change.
package segment

import (
	"time"

	"github.com/twistylocks/outreach/internal/config"
	"github.com/twistylocks/outreach/internal/domain"
)

// Thresholds are the tunable segment boundaries.
type Thresholds struct {
	VIPMinVisits      int
	VIPMinSpend       float64
	RegularMinVisits  int
	RecencyWindowDays int
	LapsedAfterDays   int
}

// ThresholdsFromConfig builds classifier thresholds from app configuration.
func ThresholdsFromConfig(c config.SegmentationConfig) Thresholds {
	return Thresholds{
		VIPMinVisits:      c.VIPMinVisits,
		VIPMinSpend:       c.VIPMinSpend,
		RegularMinVisits:  c.RegularMinVisits,
		RecencyWindowDays: c.RecencyWindowDays,
		LapsedAfterDays:   c.LapsedAfterDays,
	}
}

// Classifier assigns exactly one segment to a customer snapshot.
type Classifier struct {
	t Thresholds
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{t: t}
}

// Classify returns the segment for the customer as of now.
//
// Rule order matters and is part of the contract:
//  1. zero recorded visits        → new
//  2. no visit within LapsedAfterDays → lapsed
//  3. visits ≥ VIPMinVisits, spend ≥ VIPMinSpend, last visit inside the
//     recency window               → vip
//  4. otherwise                   → regular
//
// A customer with visits but no recorded visit date is treated as outside
// every window: they classify as lapsed, never as VIP.
func (cl *Classifier) Classify(c domain.Customer, now time.Time) domain.Segment {
	if c.TotalVisits <= 0 {
		return domain.SegmentNew
	}

	daysSince := cl.daysSinceLastVisit(c, now)

	if daysSince > cl.t.LapsedAfterDays {
		return domain.SegmentLapsed
	}

	if c.TotalVisits >= cl.t.VIPMinVisits &&
		c.TotalSpent >= cl.t.VIPMinSpend &&
		daysSince <= cl.t.RecencyWindowDays {
		return domain.SegmentVIP
	}

	return domain.SegmentRegular
}

// daysSinceLastVisit returns whole days since the last visit, or a value
// beyond every configured window when the date is unknown.
func (cl *Classifier) daysSinceLastVisit(c domain.Customer, now time.Time) int {
	if c.LastVisitDate == nil {
		beyond := cl.t.LapsedAfterDays
		if cl.t.RecencyWindowDays > beyond {
			beyond = cl.t.RecencyWindowDays
		}
		return beyond + 1
	}
	d := int(now.Sub(*c.LastVisitDate).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
