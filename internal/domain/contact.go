package domain

import "time"

// Channel identifies the outbound contact channel.
type Channel string

const (
	ChannelCall Channel = "call"
	ChannelSMS  Channel = "sms"
)

// Valid reports whether ch is a known channel.
func (ch Channel) Valid() bool {
	return ch == ChannelCall || ch == ChannelSMS
}

// JobStatus enumerates the lifecycle states of a contact job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobSent       JobStatus = "sent"
	JobFailed     JobStatus = "failed"
	JobRetried    JobStatus = "retried"
	JobSuppressed JobStatus = "suppressed"
	JobCompleted  JobStatus = "completed"
)

// Terminal reports whether no further dispatch attempts follow this status.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobSuppressed
}

// jobTransitions is the explicit status transition table. A job only ever
// moves along these edges; history entries are appended, never rewritten.
var jobTransitions = map[JobStatus][]JobStatus{
	JobPending: {JobSent, JobRetried, JobFailed, JobSuppressed},
	JobRetried: {JobSent, JobRetried, JobFailed, JobSuppressed},
	JobSent:    {JobCompleted, JobFailed},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ContactCandidate is the transient (customer, promotion) pairing produced by
// the promotion ranker. It exists only within one scheduling pass.
type ContactCandidate struct {
	Customer  Customer
	Promotion Promotion
	Segment   Segment
	Score     float64
}

// StatusChange is one append-only entry in a job's status history.
type StatusChange struct {
	Status JobStatus `json:"status" db:"status"`
	Reason string    `json:"reason,omitempty" db:"reason"`
	At     time.Time `json:"at" db:"at"`
}

// ContactJob is a scheduled outbound contact. Created by the campaign
// scheduler, mutated by the outcome tracker, retained for audit.
type ContactJob struct {
	ID            string    `json:"id" db:"id"`
	CampaignID    string    `json:"campaign_id" db:"campaign_id"`
	CustomerID    string    `json:"customer_id" db:"customer_id"`
	PromotionID   string    `json:"promotion_id" db:"promotion_id"`
	Segment       Segment   `json:"segment" db:"segment"`
	Channel       Channel   `json:"channel" db:"channel"`
	Score         float64   `json:"score" db:"score"`
	ScheduledTime time.Time `json:"scheduled_time" db:"scheduled_time"`
	AttemptNumber int       `json:"attempt_number" db:"attempt_number"`
	Status        JobStatus `json:"status" db:"status"`

	// FollowUp marks a job whose customer never picked up. The number was
	// reachable, so a later campaign may try again; a hard failure never
	// sets it.
	FollowUp bool `json:"follow_up" db:"follow_up"`

	// History holds every status change in order. The current Status is
	// always the last entry's status.
	History []StatusChange `json:"history" db:"history"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// OutcomeResult enumerates delivery results and inbound replies consumed by
// the outcome tracker.
type OutcomeResult string

const (
	OutcomeDelivered     OutcomeResult = "delivered"
	OutcomeBooked        OutcomeResult = "customer-booked"
	OutcomeDeclined      OutcomeResult = "customer-declined"
	OutcomeNoAnswer      OutcomeResult = "no-answer"
	OutcomeInvalidNumber OutcomeResult = "invalid-number"
	OutcomeOptedOut      OutcomeResult = "opted-out-reply"
)

// Valid reports whether r is a known outcome result.
func (r OutcomeResult) Valid() bool {
	switch r {
	case OutcomeDelivered, OutcomeBooked, OutcomeDeclined,
		OutcomeNoAnswer, OutcomeInvalidNumber, OutcomeOptedOut:
		return true
	}
	return false
}
