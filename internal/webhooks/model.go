// Package webhooks notifies subscribers over HTTP when records commit to the
// ledger. Subscriptions belong to a signer identity; each delivery carries an
// HMAC-SHA256 signature over the body keyed by the subscription secret.
package webhooks

import (
	"time"

	"github.com/google/uuid"

	"github.com/jmerrifield20/blockguardian/internal/identity"
)

// SignatureHeader carries "sha256=<hex hmac>" on every delivery.
const SignatureHeader = "X-BlockGuardian-Signature"

// Subscription is a signer's request to receive events at URL.
type Subscription struct {
	ID        uuid.UUID          `json:"id"`
	Owner     identity.PublicKey `json:"owner"`
	URL       string             `json:"url"`
	Events    []string           `json:"events"`
	Secret    string             `json:"-"` // never returned after creation
	Active    bool               `json:"active"`
	CreatedAt time.Time          `json:"created_at"`
}

// Wants reports whether the subscription listens for eventType.
func (s *Subscription) Wants(eventType string) bool {
	if !s.Active {
		return false
	}
	for _, e := range s.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Event is the JSON body POSTed to subscribers.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// Delivery records the outcome of a single delivery attempt.
type Delivery struct {
	ID             uuid.UUID `json:"id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	EventID        uuid.UUID `json:"event_id"`
	EventType      string    `json:"event_type"`
	StatusCode     int       `json:"status_code"`
	Attempt        int       `json:"attempt"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	DeliveredAt    time.Time `json:"delivered_at"`
}

// CreateSubscriptionRequest is the payload for creating a subscription.
type CreateSubscriptionRequest struct {
	URL    string   `json:"url"    binding:"required,url"`
	Events []string `json:"events" binding:"required,min=1"`
}
