package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the process-wide collectors.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec   // by method, route, status
	HTTPDuration *prometheus.HistogramVec // by method, route

	CallsStarted   *prometheus.CounterVec // by result: placed/rejected/provider_error
	CallsFinalized *prometheus.CounterVec // by status
	CallCharges    prometheus.Counter     // currency units debited for calls

	LedgerPostings *prometheus.CounterVec // by type, reason
	TopupAttempts  *prometheus.CounterVec // by result: succeeded/failed/timeout
	Payments       *prometheus.CounterVec // by kind, status

	VerificationAttempts *prometheus.CounterVec // by result

	BreakerState       *prometheus.GaugeVec   // 0 closed, 1 half-open, 2 open
	BreakerRequests    *prometheus.CounterVec // by name, result
	BreakerTransitions *prometheus.CounterVec // by name, from, to

	ReconcileRuns  *prometheus.CounterVec // by result
	ReconcileCalls *prometheus.CounterVec // by outcome
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the shared metrics, registering them on first use.
func Get() *Metrics {
	once.Do(func() { instance = newMetrics() })
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "voip_http_requests_total", Help: "HTTP requests by route and status"},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "voip_http_request_duration_seconds", Help: "HTTP request latency", Buckets: prometheus.DefBuckets},
			[]string{"method", "route"},
		),
		CallsStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "voip_calls_started_total", Help: "Call start attempts by result"},
			[]string{"result"},
		),
		CallsFinalized: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "voip_calls_finalized_total", Help: "Calls reaching a terminal status"},
			[]string{"status"},
		),
		CallCharges: promauto.NewCounter(
			prometheus.CounterOpts{Name: "voip_call_charges_total", Help: "Total amount debited for calls"},
		),
		LedgerPostings: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "voip_ledger_postings_total", Help: "Ledger entries written"},
			[]string{"type", "reason"},
		),
		TopupAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "voip_topup_attempts_total", Help: "Auto top-up charges by result"},
			[]string{"result"},
		),
		Payments: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "voip_payments_total", Help: "Payment status transitions"},
			[]string{"kind", "status"},
		),
		VerificationAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "voip_callerid_verification_attempts_total", Help: "Caller ID code submissions by result"},
			[]string{"result"},
		),
		BreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "voip_circuit_breaker_state", Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)"},
			[]string{"name"},
		),
		BreakerRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "voip_circuit_breaker_requests_total", Help: "Requests through circuit breakers"},
			[]string{"name", "result"},
		),
		BreakerTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "voip_circuit_breaker_transitions_total", Help: "Circuit breaker state changes"},
			[]string{"name", "from", "to"},
		),
		ReconcileRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "voip_reconcile_runs_total", Help: "Stale call reconciliation runs"},
			[]string{"result"},
		),
		ReconcileCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "voip_reconcile_calls_total", Help: "Calls handled by reconciliation"},
			[]string{"outcome"},
		),
	}
}

// Middleware records request counts and latency by route template.
func Middleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
