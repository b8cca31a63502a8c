package postgres

import (
	"context"
	"database/sql"

	"github.com/twistylocks/outreach/internal/domain"
	"github.com/twistylocks/outreach/internal/store"
)

func (s *Store) GetComplianceState(ctx context.Context, customerID string) (*domain.ComplianceState, error) {
	st := &domain.ComplianceState{}
	err := s.db.QueryRowContext(ctx, `
		SELECT customer_id, opt_out_calls, opt_out_sms,
		       attempts_today, attempts_day, last_attempt_at,
		       consent_changed_at, updated_at
		FROM compliance_states
		WHERE customer_id = $1
	`, customerID).Scan(
		&st.CustomerID, &st.OptOutCalls, &st.OptOutSMS,
		&st.AttemptsToday, &st.AttemptsDay, &st.LastAttemptAt,
		&st.ConsentChangedAt, &st.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get compliance state", err)
	}
	return st, nil
}

func (s *Store) SaveComplianceState(ctx context.Context, state *domain.ComplianceState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO compliance_states
			(customer_id, opt_out_calls, opt_out_sms,
			 attempts_today, attempts_day, last_attempt_at, consent_changed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (customer_id) DO UPDATE SET
			opt_out_calls = $2, opt_out_sms = $3,
			attempts_today = $4, attempts_day = $5,
			last_attempt_at = $6, consent_changed_at = $7, updated_at = NOW()
	`, state.CustomerID, state.OptOutCalls, state.OptOutSMS,
		state.AttemptsToday, state.AttemptsDay, state.LastAttemptAt, state.ConsentChangedAt)
	if err != nil {
		return wrapErr("save compliance state", err)
	}
	return nil
}
