package webhooks

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmerrifield20/blockguardian/internal/identity"
)

var (
	// ErrNotFound is returned when a subscription does not exist.
	ErrNotFound = errors.New("webhook subscription not found")

	// ErrForbidden is returned when a signer touches another owner's subscription.
	ErrForbidden = errors.New("subscription belongs to another identity")

	// ErrInvalidEvent is returned for unknown event types.
	ErrInvalidEvent = errors.New("unknown event type")

	// ErrInvalidURL is returned for non-http(s) delivery targets.
	ErrInvalidURL = errors.New("webhook url must be http or https")
)

// Repository persists subscriptions and delivery attempts. Create assigns
// ID, CreatedAt and Active.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListByOwner(ctx context.Context, owner identity.PublicKey) ([]*Subscription, error)
	ListByEvent(ctx context.Context, eventType string) ([]*Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RecordDelivery(ctx context.Context, d *Delivery) error
}

// MemoryRepository is an in-process Repository for tests and nodes without
// PostgreSQL. Delivery history is capped.
type MemoryRepository struct {
	mu         sync.RWMutex
	subs       []*Subscription
	deliveries []*Delivery
	maxHistory int
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{maxHistory: 1000}
}

func (r *MemoryRepository) Create(_ context.Context, sub *Subscription) error {
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.Active = true

	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *sub
	cp.Events = slices.Clone(sub.Events)
	r.subs = append(r.subs, &cp)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subs {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) ListByOwner(_ context.Context, owner identity.PublicKey) ([]*Subscription, error) {
	return r.filter(func(s *Subscription) bool { return s.Owner == owner }), nil
}

func (r *MemoryRepository) ListByEvent(_ context.Context, eventType string) ([]*Subscription, error) {
	return r.filter(func(s *Subscription) bool { return s.Wants(eventType) }), nil
}

func (r *MemoryRepository) filter(keep func(*Subscription) bool) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Subscription
	for _, s := range r.subs {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.ID == id {
			r.subs = slices.Delete(r.subs, i, i+1)
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepository) RecordDelivery(_ context.Context, d *Delivery) error {
	d.ID = uuid.New()
	d.DeliveredAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.deliveries = append(r.deliveries, &cp)
	if len(r.deliveries) > r.maxHistory {
		r.deliveries = r.deliveries[len(r.deliveries)-r.maxHistory:]
	}
	return nil
}

// Deliveries returns the recorded attempts for a subscription, oldest first.
func (r *MemoryRepository) Deliveries(id uuid.UUID) []Delivery {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Delivery
	for _, d := range r.deliveries {
		if d.SubscriptionID == id {
			out = append(out, *d)
		}
	}
	return out
}
