package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/twistylocks/outreach/internal/domain"
)

// Memory is an in-process Store. Every method copies on the way in and out,
// so callers never share mutable state with the store.
type Memory struct {
	mu          sync.RWMutex
	customers   map[string]domain.Customer
	promotions  map[string]domain.Promotion
	compliance  map[string]domain.ComplianceState
	jobs        map[string]domain.ContactJob
	runs        []domain.RunSummary
	unavailable bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		customers:  make(map[string]domain.Customer),
		promotions: make(map[string]domain.Promotion),
		compliance: make(map[string]domain.ComplianceState),
		jobs:       make(map[string]domain.ContactJob),
	}
}

// SetUnavailable makes every subsequent call fail with ErrUnavailable,
// simulating a backend outage.
func (m *Memory) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = down
}

func (m *Memory) check() error {
	if m.unavailable {
		return ErrUnavailable
	}
	return nil
}

// SeedCustomers loads customers for tests and trials.
func (m *Memory) SeedCustomers(customers ...domain.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range customers {
		m.customers[c.ID] = c
	}
}

// SeedPromotions loads catalog entries.
func (m *Memory) SeedPromotions(promos ...domain.Promotion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range promos {
		m.promotions[p.ID] = p
	}
}

func (m *Memory) ListActiveCustomers(_ context.Context) ([]domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	out := make([]domain.Customer, 0, len(m.customers))
	for _, c := range m.customers {
		if !c.Active {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	c, ok := m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) SetCustomerOptOut(_ context.Context, id string, ch domain.Channel, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	c, ok := m.customers[id]
	if !ok {
		return ErrNotFound
	}
	ts := at
	switch ch {
	case domain.ChannelCall:
		c.OptOutCalls = true
		c.CallConsentChangedAt = &ts
	case domain.ChannelSMS:
		c.OptOutSMS = true
		c.SMSConsentChangedAt = &ts
	}
	m.customers[id] = c
	return nil
}

func (m *Memory) ListCatalog(_ context.Context) ([]domain.Promotion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	out := make([]domain.Promotion, 0, len(m.promotions))
	for _, p := range m.promotions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) IncrementRedemptions(_ context.Context, promotionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	p, ok := m.promotions[promotionID]
	if !ok {
		return ErrNotFound
	}
	p.Redemptions++
	m.promotions[promotionID] = p
	return nil
}

func (m *Memory) GetComplianceState(_ context.Context, customerID string) (*domain.ComplianceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	s, ok := m.compliance[customerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) SaveComplianceState(_ context.Context, state *domain.ComplianceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.compliance[state.CustomerID] = *state
	return nil
}

func (m *Memory) SaveJob(_ context.Context, job *domain.ContactJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	cp := *job
	cp.History = append([]domain.StatusChange(nil), job.History...)
	m.jobs[job.ID] = cp
	return nil
}

func (m *Memory) GetJob(_ context.Context, id string) (*domain.ContactJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := j
	cp.History = append([]domain.StatusChange(nil), j.History...)
	return &cp, nil
}

func (m *Memory) ListJobsForDay(_ context.Context, campaignID, day string) ([]domain.ContactJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	var out []domain.ContactJob
	for _, j := range m.jobs {
		if j.CampaignID == campaignID && j.ScheduledTime.Format("2006-01-02") == day {
			cp := j
			cp.History = append([]domain.StatusChange(nil), j.History...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) QueryJobs(_ context.Context, from, to time.Time) ([]domain.ContactJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	var out []domain.ContactJob
	for _, j := range m.jobs {
		if !j.ScheduledTime.Before(from) && j.ScheduledTime.Before(to) {
			cp := j
			cp.History = append([]domain.StatusChange(nil), j.History...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveRunSummary(_ context.Context, summary *domain.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.runs = append(m.runs, *summary)
	return nil
}

func (m *Memory) ListRunSummaries(_ context.Context, from, to time.Time) ([]domain.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	var out []domain.RunSummary
	for _, r := range m.runs {
		if !r.StartedAt.Before(from) && r.StartedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}
