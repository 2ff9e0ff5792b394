// Package metrics wraps github.com/prometheus/client_golang for the
// counters and histograms the reconciler, scheduler, and HTTP layer
// expose: a Config{Namespace, Subsystem} pair, a fixed set of metrics on
// a private registry, and a gin middleware. The API router serves that
// registry at /metrics through promhttp.HandlerFor.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"nebulous/internal/apierrors"
)

// Config is a namespace/subsystem pair every registered metric is
// prefixed with.
type Config struct {
	Namespace string
	Subsystem string
}

// Metrics holds the registry plus the fixed set of metrics the
// reconciler, scheduler, and HTTP layer update.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ReconcileTicksTotal    prometheus.Counter
	ReconcileRecordsTotal  *prometheus.CounterVec
	ReconcileTickDuration  prometheus.Histogram
	ContainersByStatus     *prometheus.GaugeVec

	AdapterCallsTotal *prometheus.CounterVec
	AdapterErrors     *prometheus.CounterVec

	SchedulerDecisionsTotal *prometheus.CounterVec
}

// New registers every metric against a fresh registry and returns the
// wrapper. Called once at startup.
func New(cfg Config) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		ReconcileTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "reconcile_ticks_total",
			Help:      "Total number of reconcile tick passes completed.",
		}),
		ReconcileRecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "reconcile_records_total",
			Help:      "Total number of container records reconciled, by outcome.",
		}, []string{"outcome"}),
		ReconcileTickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "reconcile_tick_duration_seconds",
			Help:      "Duration of a full reconcile tick pass, across all pages.",
			Buckets:   prometheus.DefBuckets,
		}),
		ContainersByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "containers_by_status",
			Help:      "Number of containers last observed in each status.",
		}, []string{"status"}),
		AdapterCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "adapter_calls_total",
			Help:      "Total number of platform adapter calls, by platform and operation.",
		}, []string{"platform", "operation"}),
		AdapterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "adapter_errors_total",
			Help:      "Total number of platform adapter call failures, by platform and error kind.",
		}, []string{"platform", "kind"}),
		SchedulerDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "scheduler_decisions_total",
			Help:      "Total number of scheduling decisions, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReconcileTicksTotal,
		m.ReconcileRecordsTotal,
		m.ReconcileTickDuration,
		m.ContainersByStatus,
		m.AdapterCallsTotal,
		m.AdapterErrors,
		m.SchedulerDecisionsTotal,
	)

	return m
}

// Registry exposes the underlying prometheus.Registry for the /metrics
// scrape handler (promhttp.HandlerFor(m.Registry(), ...)).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request count and latency per route, labeled by
// method, path, and status so it can be cross-referenced against the
// request logs StructuredLogger() emits.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// RecordAdapterCall tracks one adapter invocation and, when err is
// non-nil, a corresponding failure labeled by error kind.
func (m *Metrics) RecordAdapterCall(platformName, operation string, err error) {
	m.AdapterCallsTotal.WithLabelValues(platformName, operation).Inc()
	if err != nil {
		m.AdapterErrors.WithLabelValues(platformName, errorKind(err)).Inc()
	}
}

// RecordSchedulerDecision tracks a scheduling outcome ("placed",
// "queued", "unschedulable").
func (m *Metrics) RecordSchedulerDecision(outcome string) {
	m.SchedulerDecisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordReconcileTick updates the tick counter, per-record outcome
// counters, and the tick duration histogram.
func (m *Metrics) RecordReconcileTick(duration time.Duration, checked, failed int) {
	m.ReconcileTicksTotal.Inc()
	m.ReconcileTickDuration.Observe(duration.Seconds())
	if failed > 0 {
		m.ReconcileRecordsTotal.WithLabelValues("failed").Add(float64(failed))
	}
	if ok := checked - failed; ok > 0 {
		m.ReconcileRecordsTotal.WithLabelValues("ok").Add(float64(ok))
	}
}

// SetContainersByStatus replaces the gauge for one status value. The
// caller resets all known statuses to 0 beforehand so a status with no
// remaining containers drops to zero rather than holding a stale count.
func (m *Metrics) SetContainersByStatus(status string, count int) {
	m.ContainersByStatus.WithLabelValues(status).Set(float64(count))
}

// errorKind classifies err against the closed apierrors kind set so the
// adapter_errors_total label cardinality stays bounded.
func errorKind(err error) string {
	switch {
	case isNotFound(err):
		return "not_found"
	case isConflict(err):
		return "conflict"
	case isUnschedulable(err):
		return "unschedulable"
	case isValidation(err):
		return "validation"
	case isTransient(err):
		return "transient"
	case isFatal(err):
		return "fatal"
	default:
		return "unknown"
	}
}

func isNotFound(err error) bool     { _, ok := apierrors.IsNotFoundError(err); return ok }
func isConflict(err error) bool     { _, ok := apierrors.IsConflictError(err); return ok }
func isUnschedulable(err error) bool { _, ok := apierrors.IsUnschedulableError(err); return ok }
func isValidation(err error) bool   { _, ok := apierrors.IsValidationError(err); return ok }
func isTransient(err error) bool    { _, ok := apierrors.IsTransientError(err); return ok }
func isFatal(err error) bool        { _, ok := apierrors.IsFatalError(err); return ok }
