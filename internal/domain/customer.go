package domain

import "time"

// ContactTime is a customer's stated preference for when to be contacted.
type ContactTime string

const (
	ContactMorning   ContactTime = "morning"
	ContactAfternoon ContactTime = "afternoon"
	ContactEvening   ContactTime = "evening"
	ContactAnytime   ContactTime = "anytime"
)

// VisitFrequency buckets how often a customer tends to come in.
type VisitFrequency string

const (
	FrequencyWeekly    VisitFrequency = "weekly"
	FrequencyMonthly   VisitFrequency = "monthly"
	FrequencyQuarterly VisitFrequency = "quarterly"
	FrequencyRare      VisitFrequency = "rare"
	FrequencyUnknown   VisitFrequency = "unknown"
)

// Customer represents a salon customer with visit history and contact
// preferences. Created by the data import collaborator; never deleted, only
// flagged inactive. Consent flags and contact history are mutated by the
// outcome tracker.
type Customer struct {
	ID        string `json:"id" db:"id"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Phone     string `json:"phone" db:"phone"`
	Email     string `json:"email" db:"email"`
	Active    bool   `json:"active" db:"active"`

	// Visit statistics
	TotalVisits   int        `json:"total_visits" db:"total_visits"`
	TotalSpent    float64    `json:"total_spent" db:"total_spent"`
	LastVisitDate *time.Time `json:"last_visit_date" db:"last_visit_date"`

	// Preferences
	PreferredServices    []string       `json:"preferred_services" db:"preferred_services"`
	PreferredStylist     string         `json:"preferred_stylist" db:"preferred_stylist"`
	PreferredContactTime ContactTime    `json:"preferred_contact_time" db:"preferred_contact_time"`
	VisitFrequency       VisitFrequency `json:"visit_frequency" db:"visit_frequency"`

	// Consent flags with last-changed timestamps
	OptOutCalls          bool       `json:"opt_out_calls" db:"opt_out_calls"`
	OptOutSMS            bool       `json:"opt_out_sms" db:"opt_out_sms"`
	CallConsentChangedAt *time.Time `json:"call_consent_changed_at" db:"call_consent_changed_at"`
	SMSConsentChangedAt  *time.Time `json:"sms_consent_changed_at" db:"sms_consent_changed_at"`

	// Contact history summary
	AttemptsInWindow int        `json:"attempts_in_window" db:"attempts_in_window"`
	LastContactedAt  *time.Time `json:"last_contacted_at" db:"last_contacted_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName returns the customer's display name.
func (c *Customer) FullName() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// OptedOut reports whether the customer has opted out of the given channel.
func (c *Customer) OptedOut(ch Channel) bool {
	switch ch {
	case ChannelCall:
		return c.OptOutCalls
	case ChannelSMS:
		return c.OptOutSMS
	}
	return true
}

// PrefersService reports whether the given service is among the customer's
// preferred services (case-sensitive; services are normalized at ingestion).
func (c *Customer) PrefersService(service string) bool {
	for _, s := range c.PreferredServices {
		if s == service {
			return true
		}
	}
	return false
}
