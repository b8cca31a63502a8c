// Package transport delivers outbound contact attempts to the telephony
// provider. It is the only package that talks to the outside world during a
// dispatch; everything upstream treats it as a black box that either accepts
// a message or fails with a classified error.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/twistylocks/outreach/internal/domain"
)

// ErrPermanent marks a delivery failure that retrying cannot fix, such as an
// invalid phone number. Wrap provider errors with it so the dispatcher can
// tell retryable failures apart: errors.Is(err, ErrPermanent).
var ErrPermanent = errors.New("permanent delivery failure")

// Message is the rendered content of one contact attempt.
type Message struct {
	JobID string
	To    string // E.164 phone number
	Body  string // call script or SMS body depending on channel
}

// DeliveryResult reports provider acceptance of one attempt. Acceptance is
// not delivery: final outcomes arrive later through the webhook.
type DeliveryResult struct {
	ProviderID string
	AcceptedAt time.Time
}

// Sender delivers one message on one channel. Implementations must honor
// context cancellation and must classify failures: wrap non-retryable errors
// with ErrPermanent, return everything else as transient.
type Sender interface {
	Send(ctx context.Context, ch domain.Channel, msg Message) (*DeliveryResult, error)
}

// Permanent reports whether the delivery error is non-retryable.
func Permanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
