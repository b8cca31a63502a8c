package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/twistylocks/outreach/internal/domain"
	"github.com/twistylocks/outreach/internal/store"
)

const jobColumns = `
	id, campaign_id, customer_id, promotion_id, segment, channel,
	score, scheduled_time, attempt_number, status, follow_up, created_at`

// SaveJob upserts the job row and appends any new history entries. History
// rows are keyed (job_id, seq) and inserted with ON CONFLICT DO NOTHING, so
// existing entries are never rewritten.
func (s *Store) SaveJob(ctx context.Context, job *domain.ContactJob) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin save job", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO contact_jobs
			(id, campaign_id, customer_id, promotion_id, segment, channel,
			 score, scheduled_time, attempt_number, status, follow_up, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (id) DO UPDATE SET
			attempt_number = $9, status = $10, follow_up = $11
	`, job.ID, job.CampaignID, job.CustomerID, job.PromotionID, job.Segment,
		job.Channel, job.Score, job.ScheduledTime, job.AttemptNumber, job.Status, job.FollowUp)
	if err != nil {
		return wrapErr("save job", err)
	}

	for seq, change := range job.History {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO contact_job_events (job_id, seq, status, reason, at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (job_id, seq) DO NOTHING
		`, job.ID, seq, change.Status, change.Reason, change.At)
		if err != nil {
			return wrapErr("save job event", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("commit save job", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.ContactJob, error) {
	j := &domain.ContactJob{}
	err := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM contact_jobs
		WHERE id = $1
	`, id).Scan(
		&j.ID, &j.CampaignID, &j.CustomerID, &j.PromotionID, &j.Segment, &j.Channel,
		&j.Score, &j.ScheduledTime, &j.AttemptNumber, &j.Status, &j.FollowUp, &j.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get job", err)
	}

	if j.History, err = s.jobHistory(ctx, id); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *Store) jobHistory(ctx context.Context, jobID string) ([]domain.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COALESCE(reason,''), at
		FROM contact_job_events
		WHERE job_id = $1
		ORDER BY seq
	`, jobID)
	if err != nil {
		return nil, wrapErr("job history", err)
	}
	defer rows.Close()

	var out []domain.StatusChange
	for rows.Next() {
		var c domain.StatusChange
		if err := rows.Scan(&c.Status, &c.Reason, &c.At); err != nil {
			return nil, wrapErr("scan job event", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListJobsForDay(ctx context.Context, campaignID, day string) ([]domain.ContactJob, error) {
	dayStart, err := time.ParseInLocation("2006-01-02", day, s.loc)
	if err != nil {
		return nil, fmt.Errorf("bad day %q: %w", day, err)
	}
	return s.queryJobs(ctx, `
		SELECT `+jobColumns+`
		FROM contact_jobs
		WHERE campaign_id = $1 AND scheduled_time >= $2 AND scheduled_time < $3
		ORDER BY id
	`, campaignID, dayStart, dayStart.AddDate(0, 0, 1))
}

func (s *Store) QueryJobs(ctx context.Context, from, to time.Time) ([]domain.ContactJob, error) {
	return s.queryJobs(ctx, `
		SELECT `+jobColumns+`
		FROM contact_jobs
		WHERE scheduled_time >= $1 AND scheduled_time < $2
		ORDER BY id
	`, from, to)
}

func (s *Store) queryJobs(ctx context.Context, q string, args ...interface{}) ([]domain.ContactJob, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapErr("query jobs", err)
	}
	defer rows.Close()

	var out []domain.ContactJob
	for rows.Next() {
		var j domain.ContactJob
		if err := rows.Scan(
			&j.ID, &j.CampaignID, &j.CustomerID, &j.PromotionID, &j.Segment, &j.Channel,
			&j.Score, &j.ScheduledTime, &j.AttemptNumber, &j.Status, &j.FollowUp, &j.CreatedAt,
		); err != nil {
			return nil, wrapErr("scan job", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("query jobs", err)
	}

	for i := range out {
		if out[i].History, err = s.jobHistory(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
