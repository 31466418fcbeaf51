package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type flakyPinger struct {
	failures atomic.Int32 // remaining failures before success
}

func (p *flakyPinger) Ping(context.Context) error {
	if p.failures.Load() > 0 {
		p.failures.Add(-1)
		return errors.New("connection refused")
	}
	return nil
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheckAll_healthy(t *testing.T) {
	checker := New(Config{FailThreshold: 3}, zap.NewNop())
	checker.Register("ledger", PingFunc(func(context.Context) error { return nil }))

	if checker.Ready() {
		t.Error("expected not ready before the first probe")
	}
	checker.CheckAll(context.Background())
	if !checker.Ready() {
		t.Errorf("expected ready, got %+v", checker.Report())
	}
}

func TestCheckAll_degradesAfterThreshold(t *testing.T) {
	p := &flakyPinger{}
	p.failures.Store(100)
	checker := New(Config{FailThreshold: 3}, zap.NewNop())
	checker.Register("ledger", p)

	for i := 0; i < 2; i++ {
		checker.CheckAll(context.Background())
	}
	if st := checker.Report()["ledger"]; st.Status == StatusDegraded {
		t.Fatalf("degraded before threshold: %+v", st)
	}

	checker.CheckAll(context.Background())
	st := checker.Report()["ledger"]
	if st.Status != StatusDegraded || st.FailCount != 3 || st.LastError == "" {
		t.Errorf("expected degraded after 3 failures, got %+v", st)
	}
}

func TestCheckAll_recoversOnSuccess(t *testing.T) {
	p := &flakyPinger{}
	p.failures.Store(3)
	var probes, successes int
	checker := New(Config{FailThreshold: 3}, zap.NewNop())
	checker.SetMetricsRecord(func(ok bool) {
		probes++
		if ok {
			successes++
		}
	})
	checker.Register("ledger", p)

	for i := 0; i < 4; i++ {
		checker.CheckAll(context.Background())
	}
	if st := checker.Report()["ledger"]; st.Status != StatusHealthy || st.FailCount != 0 {
		t.Errorf("expected healthy after recovery, got %+v", st)
	}
	if probes != 4 || successes != 1 {
		t.Errorf("metrics: probes=%d successes=%d", probes, successes)
	}
}

func TestProbe_timeout(t *testing.T) {
	checker := New(Config{ProbeTimeout: 10 * time.Millisecond, FailThreshold: 1}, zap.NewNop())
	checker.Register("slow", PingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	checker.CheckAll(context.Background())
	if checker.Ready() {
		t.Error("expected a hung dependency to be reported unready")
	}
}

func TestReadyHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fail := true
	checker := New(Config{FailThreshold: 1}, zap.NewNop())
	checker.Register("ledger", PingFunc(func(context.Context) error {
		if fail {
			return errors.New("down")
		}
		return nil
	}))

	r := gin.New()
	r.GET("/readyz", checker.ReadyHandler())

	checker.CheckAll(context.Background())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}

	fail = false
	checker.CheckAll(context.Background())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStart_stopsOnCancel(t *testing.T) {
	checker := New(Config{CheckInterval: time.Millisecond}, zap.NewNop())
	checker.Register("ledger", PingFunc(func(context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Start(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if !checker.Ready() {
		t.Error("expected ready after probes")
	}
}
