package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/jmerrifield20/blockguardian/internal/webhooks"
)

// Event types a subscription can listen for.
const (
	EventProofStored = "proof.stored"
	EventMessageSent = "message.sent"
)

// WebhookSignatureHeader is the delivery header checked by VerifyWebhook.
const WebhookSignatureHeader = webhooks.SignatureHeader

// Subscription is a webhook subscription owned by the signer.
type Subscription struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// WebhookEvent is the body delivered to subscribers.
type WebhookEvent struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// Subscribe registers target to receive events. The returned secret is shown
// only once; keep it to check deliveries with VerifyWebhook. Requires a signer.
func (c *Client) Subscribe(ctx context.Context, target string, events ...string) (*Subscription, string, error) {
	body := map[string]any{"url": target, "events": events}
	var out struct {
		Subscription Subscription `json:"subscription"`
		Secret       string       `json:"secret"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/webhooks", body, &out, true); err != nil {
		return nil, "", err
	}
	return &out.Subscription, out.Secret, nil
}

// ListSubscriptions returns the signer's subscriptions.
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	var out struct {
		Subscriptions []Subscription `json:"subscriptions"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/webhooks", nil, &out, true); err != nil {
		return nil, err
	}
	return out.Subscriptions, nil
}

// Unsubscribe deletes one of the signer's subscriptions.
func (c *Client) Unsubscribe(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/webhooks/"+url.PathEscape(id), nil, nil, true)
}

// VerifyWebhook reports whether signature (the WebhookSignatureHeader value)
// matches body under secret.
func VerifyWebhook(body []byte, secret, signature string) bool {
	return webhooks.Verify(body, secret, signature)
}
