package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/twistylocks/outreach/internal/domain"
)

func (s *Store) SaveRunSummary(ctx context.Context, summary *domain.RunSummary) error {
	statusCounts, err := json.Marshal(summary.StatusCounts)
	if err != nil {
		return wrapErr("marshal status counts", err)
	}
	denials, err := json.Marshal(summary.Denials)
	if err != nil {
		return wrapErr("marshal denials", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_summaries
			(run_id, campaign_id, started_at, finished_at, aborted, abort_reason,
			 collected, queued, deferred, status_counts, denials)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = $4, aborted = $5, abort_reason = $6,
			collected = $7, queued = $8, deferred = $9,
			status_counts = $10, denials = $11
	`, summary.RunID, summary.CampaignID, summary.StartedAt, summary.FinishedAt,
		summary.Aborted, summary.AbortReason,
		summary.Collected, summary.Queued, summary.Deferred, statusCounts, denials)
	if err != nil {
		return wrapErr("save run summary", err)
	}
	return nil
}

func (s *Store) ListRunSummaries(ctx context.Context, from, to time.Time) ([]domain.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, campaign_id, started_at, finished_at, aborted,
		       COALESCE(abort_reason,''), collected, queued, deferred,
		       status_counts, denials
		FROM run_summaries
		WHERE started_at >= $1 AND started_at < $2
		ORDER BY started_at
	`, from, to)
	if err != nil {
		return nil, wrapErr("list run summaries", err)
	}
	defer rows.Close()

	var out []domain.RunSummary
	for rows.Next() {
		var r domain.RunSummary
		var statusCounts, denials []byte
		if err := rows.Scan(
			&r.RunID, &r.CampaignID, &r.StartedAt, &r.FinishedAt, &r.Aborted,
			&r.AbortReason, &r.Collected, &r.Queued, &r.Deferred,
			&statusCounts, &denials,
		); err != nil {
			return nil, wrapErr("scan run summary", err)
		}
		if len(statusCounts) > 0 {
			if err := json.Unmarshal(statusCounts, &r.StatusCounts); err != nil {
				return nil, wrapErr("unmarshal status counts", err)
			}
		}
		if len(denials) > 0 {
			if err := json.Unmarshal(denials, &r.Denials); err != nil {
				return nil, wrapErr("unmarshal denials", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
