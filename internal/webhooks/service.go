package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/proofs/service"
)

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Service manages subscriptions and fans committed-write events out to them.
// It implements service.Notifier.
type Service struct {
	repo        Repository
	httpClient  *http.Client
	retryDelays []time.Duration
	onMetrics   MetricsRecorder
	logger      *zap.Logger

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

var _ service.Notifier = (*Service)(nil)

// NewService creates a webhook Service. Failed deliveries are retried after
// 1s and 5s.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		retryDelays: []time.Duration{time.Second, 5 * time.Second},
		logger:      logger,
		stop:        make(chan struct{}),
	}
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(fn MetricsRecorder) { s.onMetrics = fn }

// SetHTTPClient replaces the delivery client.
func (s *Service) SetHTTPClient(hc *http.Client) { s.httpClient = hc }

// SetRetryDelays sets the waits before each retry. An empty slice disables
// retries.
func (s *Service) SetRetryDelays(d []time.Duration) { s.retryDelays = d }

// Subscribe creates a subscription for owner with a generated HMAC secret.
// The returned Subscription is the only place the secret is exposed.
func (s *Service) Subscribe(ctx context.Context, owner identity.PublicKey, req *CreateSubscriptionRequest) (*Subscription, error) {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	for _, e := range req.Events {
		if !slices.Contains(service.Events, e) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEvent, e)
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	sub := &Subscription{
		Owner:  owner,
		URL:    u.String(),
		Events: slices.Compact(slices.Sorted(slices.Values(req.Events))),
		Secret: secret,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	s.logger.Info("webhook subscribed",
		zap.Stringer("owner", owner),
		zap.String("url", sub.URL),
		zap.Strings("events", sub.Events),
	)
	return sub, nil
}

// Unsubscribe deletes a subscription owned by owner.
func (s *Service) Unsubscribe(ctx context.Context, owner identity.PublicKey, id uuid.UUID) error {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sub.Owner != owner {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, id)
}

// ListByOwner returns every subscription owned by owner.
func (s *Service) ListByOwner(ctx context.Context, owner identity.PublicKey) ([]*Subscription, error) {
	return s.repo.ListByOwner(ctx, owner)
}

// Dispatch fans eventType out to every matching subscription. Deliveries run
// in the background and outlive ctx; Close waits for them.
func (s *Service) Dispatch(ctx context.Context, eventType string, payload map[string]string) {
	ctx = context.WithoutCancel(ctx)
	subs, err := s.repo.ListByEvent(ctx, eventType)
	if err != nil {
		s.logger.Error("webhook: list subscribers", zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	event := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(len(subs))
	for _, sub := range subs {
		go func() {
			defer s.wg.Done()
			s.deliver(ctx, sub, event, body)
		}()
	}
}

// Close stops scheduling retries and waits for in-flight deliveries until
// ctx is done.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.stop)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) deliver(ctx context.Context, sub *Subscription, event Event, body []byte) {
	signature := Sign(body, sub.Secret)

	for attempt := 1; attempt <= len(s.retryDelays)+1; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(s.retryDelays[attempt-2]):
			case <-s.stop:
				return
			}
		}

		success, statusCode, errMsg := s.post(ctx, sub.URL, body, signature)

		d := &Delivery{
			SubscriptionID: sub.ID,
			EventID:        event.ID,
			EventType:      event.Type,
			StatusCode:     statusCode,
			Attempt:        attempt,
			Success:        success,
			ErrorMessage:   errMsg,
		}
		if err := s.repo.RecordDelivery(ctx, d); err != nil {
			s.logger.Warn("webhook: record delivery", zap.Error(err))
		}
		if s.onMetrics != nil {
			s.onMetrics(success)
		}
		if success {
			return
		}

		s.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.String("event", event.Type),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

func (s *Service) post(ctx context.Context, target string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, resp.StatusCode, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return true, resp.StatusCode, ""
}

// Sign computes the SignatureHeader value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a SignatureHeader value in constant time.
func Verify(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
