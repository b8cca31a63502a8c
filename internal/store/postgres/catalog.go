package postgres

import (
	"context"

	"github.com/lib/pq"

	"github.com/twistylocks/outreach/internal/domain"
	"github.com/twistylocks/outreach/internal/store"
)

func (s *Store) ListCatalog(ctx context.Context) ([]domain.Promotion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description,''),
		       discount_percent, discount_amount,
		       eligible_segments, eligible_services,
		       start_date, end_date, priority_weight,
		       redemption_cap, redemptions, created_at
		FROM promotions
		ORDER BY id
	`)
	if err != nil {
		return nil, wrapErr("list catalog", err)
	}
	defer rows.Close()

	var out []domain.Promotion
	for rows.Next() {
		var p domain.Promotion
		var segments, services pq.StringArray
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description,
			&p.DiscountPercent, &p.DiscountAmount,
			&segments, &services,
			&p.StartDate, &p.EndDate, &p.PriorityWeight,
			&p.RedemptionCap, &p.Redemptions, &p.CreatedAt,
		); err != nil {
			return nil, wrapErr("scan promotion", err)
		}
		for _, seg := range segments {
			p.EligibleSegments = append(p.EligibleSegments, domain.Segment(seg))
		}
		p.EligibleServices = []string(services)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list catalog", err)
	}
	return out, nil
}

func (s *Store) IncrementRedemptions(ctx context.Context, promotionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE promotions SET redemptions = redemptions + 1 WHERE id = $1`,
		promotionID,
	)
	if err != nil {
		return wrapErr("increment redemptions", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
