// Package promotion selects the best-fit offer for a customer and segment
// from the published catalog.
//
// Selection never errors on an empty result: a customer with no eligible
// promotion is simply skipped for the cycle.
package promotion

import (
	"sort"
	"time"

	"github.com/twistylocks/outreach/internal/domain"
)

// Ranker filters and orders the promotion catalog per customer.
type Ranker struct{}

// NewRanker creates a promotion ranker.
func NewRanker() *Ranker {
	return &Ranker{}
}

// SelectBest returns the highest-ranked promotion the customer is eligible
// for, or nil when none survives filtering.
//
// Filter: the promotion must target the customer's segment (or be
// segment-universal), its validity window must contain now, its redemption
// cap must not be exhausted, and its eligible services must overlap the
// customer's preferred services unless the promotion is service-universal.
//
// Rank: priority weight descending; ties broken by earliest validity end
// first (use it before it expires), then by promotion ID ascending so the
// result is fully deterministic.
func (r *Ranker) SelectBest(cust *domain.Customer, seg domain.Segment, catalog []domain.Promotion, now time.Time) *domain.Promotion {
	var eligible []domain.Promotion
	for _, p := range catalog {
		if r.Eligible(cust, seg, &p, now) {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.PriorityWeight != b.PriorityWeight {
			return a.PriorityWeight > b.PriorityWeight
		}
		if !a.EndDate.Equal(b.EndDate) {
			return a.EndDate.Before(b.EndDate)
		}
		return a.ID < b.ID
	})

	best := eligible[0]
	return &best
}

// Eligible reports whether a single promotion may be offered to the customer.
func (r *Ranker) Eligible(cust *domain.Customer, seg domain.Segment, p *domain.Promotion, now time.Time) bool {
	if !p.ActiveAt(now) {
		return false
	}
	if p.CapExhausted() {
		return false
	}
	if !p.TargetsSegment(seg) {
		return false
	}
	if len(p.EligibleServices) > 0 && !p.SegmentUniversal() {
		if !serviceOverlap(cust, p) {
			return false
		}
	}
	return true
}

func serviceOverlap(cust *domain.Customer, p *domain.Promotion) bool {
	for _, svc := range p.EligibleServices {
		if cust.PrefersService(svc) {
			return true
		}
	}
	return false
}

// Score computes the candidate priority score used to order dispatch within
// a time slot. Higher-value pairings dispatch first when a slot has a
// sub-cap. The score blends the promotion's weight with offer value, service
// affinity, and urgency, and is deterministic for a given input.
func (r *Ranker) Score(cust *domain.Customer, seg domain.Segment, p *domain.Promotion, now time.Time) float64 {
	score := float64(p.PriorityWeight) * 10

	// Offer value
	score += p.DiscountPercent * 2
	score += p.DiscountAmount / 10

	// Service affinity: each matched preferred service adds weight
	for _, svc := range p.EligibleServices {
		if cust.PrefersService(svc) {
			score += 15
		}
	}

	// Urgency: promotions ending within a week move up
	if p.EndDate.Sub(now) <= 7*24*time.Hour {
		score += 25
	}

	// Win-back: lapsed customers are the most valuable to recover
	if seg == domain.SegmentLapsed {
		score += 30
	}

	// Crowd out nearly exhausted offers
	if p.RedemptionCap > 0 {
		score -= 10 * float64(p.Redemptions) / float64(p.RedemptionCap)
	}

	return score
}
