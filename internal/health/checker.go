// Package health tracks readiness of the ledger backend and any other
// dependency that can be pinged.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Status values reported per dependency.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusUnknown  = "unknown"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Pinger is anything that can report whether it is reachable.
// ledger.Store satisfies this interface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool)

// DependencyStatus is the last known state of one dependency.
type DependencyStatus struct {
	Status    string    `json:"status"`
	FailCount int       `json:"fail_count"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic probes against named dependencies.
type Checker struct {
	targets   map[string]Pinger
	states    map[string]*DependencyStatus
	mu        sync.RWMutex
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new Checker.
func New(cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 15 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		targets: make(map[string]Pinger),
		states:  make(map[string]*DependencyStatus),
		cfg:     cfg,
		logger:  logger,
	}
}

// Register adds a named dependency. Call before Start.
func (h *Checker) Register(name string, p Pinger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.targets[name] = p
	h.states[name] = &DependencyStatus{Status: StatusUnknown}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start probes immediately and then on every interval until ctx is done.
func (h *Checker) Start(ctx context.Context) {
	h.CheckAll(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll probes every registered dependency concurrently.
func (h *Checker) CheckAll(ctx context.Context) {
	h.mu.RLock()
	targets := make(map[string]Pinger, len(h.targets))
	for name, p := range h.targets {
		targets[name] = p
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for name, p := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.probe(ctx, name, p)
		}()
	}
	wg.Wait()
}

func (h *Checker) probe(ctx context.Context, name string, p Pinger) {
	pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	err := p.Ping(pctx)
	cancel()

	if h.onMetrics != nil {
		h.onMetrics(err == nil)
	}

	h.mu.Lock()
	st := h.states[name]
	prevCount := st.FailCount
	st.CheckedAt = time.Now().UTC()
	if err == nil {
		st.FailCount = 0
		st.LastError = ""
		st.Status = StatusHealthy
	} else {
		st.FailCount++
		st.LastError = err.Error()
		if st.FailCount >= h.cfg.FailThreshold {
			st.Status = StatusDegraded
		}
	}
	count := st.FailCount
	h.mu.Unlock()

	switch {
	case err == nil && prevCount >= h.cfg.FailThreshold:
		h.logger.Info("health: recovered", zap.String("dependency", name))
	case err != nil && count == h.cfg.FailThreshold:
		h.logger.Warn("health: degraded",
			zap.String("dependency", name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
	}
}

// Ready reports whether every dependency is currently healthy.
func (h *Checker) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, st := range h.states {
		if st.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// Report returns a snapshot of every dependency's status.
func (h *Checker) Report() map[string]DependencyStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]DependencyStatus, len(h.states))
	for name, st := range h.states {
		out[name] = *st
	}
	return out
}

// Names returns the registered dependency names in sorted order.
func (h *Checker) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.targets))
	for name := range h.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadyHandler serves the readiness report: 200 when ready, 503 otherwise.
func (h *Checker) ReadyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		if !h.Ready() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": status == http.StatusOK, "dependencies": h.Report()})
	}
}
