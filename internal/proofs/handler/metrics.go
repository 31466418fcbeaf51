package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bgAccountsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blockguardian_accounts_total",
		Help: "Accounts in the ledger as of the last overview request.",
	})

	bgRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blockguardian_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	bgRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blockguardian_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	bgHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blockguardian_health_checks_total",
		Help: "Total readiness probes by result.",
	}, []string{"result"})

	bgRecordsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blockguardian_records_written_total",
		Help: "Records committed to the ledger by kind.",
	}, []string{"kind"})

	bgWritesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blockguardian_writes_rejected_total",
		Help: "Rejected writes by kind and error code.",
	}, []string{"kind", "code"})

	bgWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blockguardian_webhook_deliveries_total",
		Help: "Webhook delivery attempts by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		bgRequestsTotal.WithLabelValues(method, path, status).Inc()
		bgRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordHealthCheck records a readiness probe result.
func RecordHealthCheck(success bool) {
	if success {
		bgHealthChecksTotal.WithLabelValues("success").Inc()
	} else {
		bgHealthChecksTotal.WithLabelValues("failure").Inc()
	}
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		bgWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		bgWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}

// RecordWrite records a committed record of the given kind.
func RecordWrite(kind string) {
	bgRecordsWrittenTotal.WithLabelValues(kind).Inc()
}

// RecordRejection records a failed write.
func RecordRejection(kind, code string) {
	bgWritesRejectedTotal.WithLabelValues(kind, code).Inc()
}

// SetAccountsGauge sets the ledger account gauge.
func SetAccountsGauge(count float64) {
	bgAccountsTotal.Set(count)
}
