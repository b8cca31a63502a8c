package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/twistylocks/outreach/internal/domain"
	"github.com/twistylocks/outreach/internal/store"
)

const customerColumns = `
	id, first_name, last_name, phone, COALESCE(email,''), active,
	total_visits, total_spent, last_visit_date,
	preferred_services, COALESCE(preferred_stylist,''),
	COALESCE(preferred_contact_time,'anytime'), COALESCE(visit_frequency,'unknown'),
	opt_out_calls, opt_out_sms, call_consent_changed_at, sms_consent_changed_at,
	attempts_in_window, last_contacted_at, created_at, updated_at`

func scanCustomer(row interface{ Scan(...interface{}) error }) (*domain.Customer, error) {
	c := &domain.Customer{}
	var services pq.StringArray
	err := row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Phone, &c.Email, &c.Active,
		&c.TotalVisits, &c.TotalSpent, &c.LastVisitDate,
		&services, &c.PreferredStylist,
		&c.PreferredContactTime, &c.VisitFrequency,
		&c.OptOutCalls, &c.OptOutSMS, &c.CallConsentChangedAt, &c.SMSConsentChangedAt,
		&c.AttemptsInWindow, &c.LastContactedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.PreferredServices = []string(services)
	return c, nil
}

func (s *Store) ListActiveCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE active = true
		ORDER BY id
	`)
	if err != nil {
		return nil, wrapErr("list customers", err)
	}
	defer rows.Close()

	var out []domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, wrapErr("scan customer", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list customers", err)
	}
	return out, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get customer", err)
	}
	return c, nil
}

func (s *Store) SetCustomerOptOut(ctx context.Context, id string, ch domain.Channel, at time.Time) error {
	col, tsCol := "opt_out_calls", "call_consent_changed_at"
	if ch == domain.ChannelSMS {
		col, tsCol = "opt_out_sms", "sms_consent_changed_at"
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE customers SET `+col+` = true, `+tsCol+` = $1, updated_at = NOW() WHERE id = $2`,
		at, id,
	)
	if err != nil {
		return wrapErr("set customer opt-out", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
