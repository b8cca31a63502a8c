package domain

import "time"

// Segment is the deterministic classification bucket for a customer derived
// from visit, spend, and recency attributes. Segments are computed on demand,
// never stored.
type Segment string

const (
	SegmentNew     Segment = "new"
	SegmentRegular Segment = "regular"
	SegmentVIP     Segment = "vip"
	SegmentLapsed  Segment = "lapsed"
)

// Promotion is a published offer. Immutable once published; expires naturally
// when the current time passes EndDate.
type Promotion struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`

	// Discount terms. Either percentage or a flat amount; both zero means
	// a non-monetary offer (e.g. free add-on).
	DiscountPercent float64 `json:"discount_percent" db:"discount_percent"`
	DiscountAmount  float64 `json:"discount_amount" db:"discount_amount"`

	// Targeting. Empty EligibleSegments means segment-universal; empty
	// EligibleServices means any service qualifies.
	EligibleSegments []Segment `json:"eligible_segments" db:"eligible_segments"`
	EligibleServices []string  `json:"eligible_services" db:"eligible_services"`

	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date" db:"end_date"`

	PriorityWeight int `json:"priority_weight" db:"priority_weight"`

	// RedemptionCap limits total redemptions; 0 means unlimited.
	RedemptionCap int `json:"redemption_cap" db:"redemption_cap"`
	Redemptions   int `json:"redemptions" db:"redemptions"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ActiveAt reports whether the promotion's validity window contains t.
func (p *Promotion) ActiveAt(t time.Time) bool {
	return !t.Before(p.StartDate) && !t.After(p.EndDate)
}

// SegmentUniversal reports whether the promotion targets all segments.
func (p *Promotion) SegmentUniversal() bool {
	return len(p.EligibleSegments) == 0
}

// TargetsSegment reports whether seg is in the promotion's eligible set.
// A segment-universal promotion targets every segment.
func (p *Promotion) TargetsSegment(seg Segment) bool {
	if p.SegmentUniversal() {
		return true
	}
	for _, s := range p.EligibleSegments {
		if s == seg {
			return true
		}
	}
	return false
}

// CapExhausted reports whether the redemption cap has been reached.
func (p *Promotion) CapExhausted() bool {
	return p.RedemptionCap > 0 && p.Redemptions >= p.RedemptionCap
}
