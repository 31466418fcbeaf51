package webhooks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/proofs/service"
	"github.com/jmerrifield20/blockguardian/internal/webhooks"
)

type receiver struct {
	mu      sync.Mutex
	bodies  [][]byte
	sigs    []string
	failFor int32
	calls   atomic.Int32
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	n := r.calls.Add(1)
	body, _ := io.ReadAll(req.Body)
	if n <= r.failFor {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	r.mu.Lock()
	r.bodies = append(r.bodies, body)
	r.sigs = append(r.sigs, req.Header.Get(webhooks.SignatureHeader))
	r.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (r *receiver) snapshot() ([][]byte, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies, r.sigs
}

func newService(t *testing.T) (*webhooks.Service, *webhooks.MemoryRepository) {
	t.Helper()
	repo := webhooks.NewMemoryRepository()
	svc := webhooks.NewService(repo, zap.NewNop())
	svc.SetRetryDelays([]time.Duration{time.Millisecond, time.Millisecond})
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc, repo
}

func newOwner(t *testing.T) *identity.Keypair {
	t.Helper()
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	return kp
}

func TestDispatchSignsAndDelivers(t *testing.T) {
	svc, _ := newService(t)
	rcv := &receiver{}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	sub, err := svc.Subscribe(context.Background(), newOwner(t).PublicKey(), &webhooks.CreateSubscriptionRequest{
		URL: srv.URL, Events: []string{service.EventProofStored},
	})
	require.NoError(t, err)
	require.NotEmpty(t, sub.Secret)

	svc.Dispatch(context.Background(), service.EventProofStored, map[string]string{"record_id": "abc"})
	svc.Dispatch(context.Background(), service.EventMessageSent, map[string]string{"record_id": "ignored"})
	require.NoError(t, svc.Close(context.Background()))

	bodies, sigs := rcv.snapshot()
	require.Len(t, bodies, 1)
	assert.True(t, webhooks.Verify(bodies[0], sub.Secret, sigs[0]))
	assert.False(t, webhooks.Verify(bodies[0], "wrong", sigs[0]))

	var ev webhooks.Event
	require.NoError(t, json.Unmarshal(bodies[0], &ev))
	assert.Equal(t, service.EventProofStored, ev.Type)
	assert.Equal(t, "abc", ev.Payload["record_id"])
}

func TestDeliveryRetries(t *testing.T) {
	svc, repo := newService(t)
	rcv := &receiver{failFor: 2}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	var outcomes []bool
	var mu sync.Mutex
	svc.SetMetricsRecorder(func(ok bool) {
		mu.Lock()
		outcomes = append(outcomes, ok)
		mu.Unlock()
	})

	sub, err := svc.Subscribe(context.Background(), newOwner(t).PublicKey(), &webhooks.CreateSubscriptionRequest{
		URL: srv.URL, Events: []string{service.EventMessageSent},
	})
	require.NoError(t, err)

	svc.Dispatch(context.Background(), service.EventMessageSent, map[string]string{})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(outcomes) == 3
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, svc.Close(context.Background()))

	assert.Equal(t, int32(3), rcv.calls.Load())
	assert.Equal(t, []bool{false, false, true}, outcomes)

	deliveries := repo.Deliveries(sub.ID)
	require.Len(t, deliveries, 3)
	assert.Equal(t, http.StatusInternalServerError, deliveries[0].StatusCode)
	assert.True(t, deliveries[2].Success)
	assert.Equal(t, 3, deliveries[2].Attempt)
}

func TestSubscribeValidation(t *testing.T) {
	svc, _ := newService(t)
	owner := newOwner(t).PublicKey()
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, owner, &webhooks.CreateSubscriptionRequest{URL: "ftp://example.com", Events: []string{service.EventProofStored}})
	assert.ErrorIs(t, err, webhooks.ErrInvalidURL)

	_, err = svc.Subscribe(ctx, owner, &webhooks.CreateSubscriptionRequest{URL: "https://example.com/hook", Events: []string{"record.deleted"}})
	assert.ErrorIs(t, err, webhooks.ErrInvalidEvent)

	sub, err := svc.Subscribe(ctx, owner, &webhooks.CreateSubscriptionRequest{
		URL:    "https://example.com/hook",
		Events: []string{service.EventProofStored, service.EventMessageSent, service.EventProofStored},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{service.EventMessageSent, service.EventProofStored}, sub.Events)
}

func TestUnsubscribeOwnership(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	owner, other := newOwner(t).PublicKey(), newOwner(t).PublicKey()

	sub, err := svc.Subscribe(ctx, owner, &webhooks.CreateSubscriptionRequest{URL: "https://example.com", Events: []string{service.EventProofStored}})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Unsubscribe(ctx, other, sub.ID), webhooks.ErrForbidden)
	require.NoError(t, svc.Unsubscribe(ctx, owner, sub.ID))
	assert.ErrorIs(t, svc.Unsubscribe(ctx, owner, sub.ID), webhooks.ErrNotFound)
}

func TestHandlerRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newService(t)
	r := gin.New()
	webhooks.NewHandler(svc, zap.NewNop()).Register(r.Group("/api/v1"))

	owner := newOwner(t)
	token, err := identity.IssueSignerToken(owner, "webhooks", time.Minute)
	require.NoError(t, err)

	do := func(method, path string, body any, auth string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		if auth != "" {
			req.Header.Set("Authorization", "Bearer "+auth)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodGet, "/api/v1/webhooks", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(http.MethodPost, "/api/v1/webhooks", map[string]any{
		"url": "https://example.com/hook", "events": []string{service.EventProofStored},
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Subscription webhooks.Subscription `json:"subscription"`
		Secret       string                `json:"secret"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Secret)
	assert.Equal(t, owner.PublicKey(), created.Subscription.Owner)

	w = do(http.MethodGet, "/api/v1/webhooks", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
	assert.NotContains(t, w.Body.String(), created.Secret)

	otherToken, err := identity.IssueSignerToken(newOwner(t), "webhooks", time.Minute)
	require.NoError(t, err)
	w = do(http.MethodDelete, "/api/v1/webhooks/"+created.Subscription.ID.String(), nil, otherToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(http.MethodDelete, "/api/v1/webhooks/"+created.Subscription.ID.String(), nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(http.MethodDelete, "/api/v1/webhooks/not-a-uuid", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCloseStopsRetries(t *testing.T) {
	svc, repo := newService(t)
	svc.SetRetryDelays([]time.Duration{time.Hour})
	rcv := &receiver{failFor: 100}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	sub, err := svc.Subscribe(context.Background(), newOwner(t).PublicKey(), &webhooks.CreateSubscriptionRequest{
		URL: srv.URL, Events: []string{service.EventProofStored},
	})
	require.NoError(t, err)

	svc.Dispatch(context.Background(), service.EventProofStored, nil)
	require.Eventually(t, func() bool { return len(repo.Deliveries(sub.ID)) == 1 }, 5*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Close(ctx))
	assert.Equal(t, int32(1), rcv.calls.Load())

	svc.Dispatch(context.Background(), service.EventProofStored, nil)
	assert.Equal(t, int32(1), rcv.calls.Load())
}
