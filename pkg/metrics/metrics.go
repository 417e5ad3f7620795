package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is a no-op.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Business metrics
	EnquiriesCreated   *prometheus.CounterVec
	StatusTransitions  *prometheus.CounterVec
	AssignmentOutcomes *prometheus.CounterVec
	SLABreaches        prometheus.Counter
	SideEffectFailures *prometheus.CounterVec
	ImportedRows       prometheus.Counter
	ExportsCreated     *prometheus.CounterVec

	// Database metrics
	DBConnections prometheus.Gauge

	// Cache metrics
	CacheErrors *prometheus.CounterVec
}

// New creates a new Metrics instance registered on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
			},
			[]string{"method", "path"},
		),

		EnquiriesCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enquiries_created_total",
				Help: "Total number of enquiries created",
			},
			[]string{"profile", "duplicate"},
		),
		StatusTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enquiry_status_transitions_total",
				Help: "Total number of enquiry status transitions",
			},
			[]string{"from", "to"},
		),
		AssignmentOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enquiry_assignments_total",
				Help: "Assignment decisions by outcome and method",
			},
			[]string{"outcome", "method"},
		),
		SLABreaches: f.NewCounter(prometheus.CounterOpts{
			Name: "enquiry_sla_breaches_total",
			Help: "Enquiries flagged as past their response due date",
		}),
		SideEffectFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "side_effect_failures_total",
				Help: "Best effort side effects that failed",
			},
			[]string{"hook"},
		),
		ImportedRows: f.NewCounter(prometheus.CounterOpts{
			Name: "enquiry_import_rows_total",
			Help: "Rows inserted by bulk import",
		}),
		ExportsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exports_created_total",
				Help: "Total number of exports created",
			},
			[]string{"format"},
		),

		DBConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		}),

		CacheErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_errors_total",
				Help: "Total number of cache errors",
			},
			[]string{"operation"},
		),
	}
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, e.g. /api/v1/enquiries/:id

			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, status).Observe(time.Since(start).Seconds())
			m.HTTPResponseSize.WithLabelValues(req.Method, path).Observe(float64(c.Response().Size))

			return err
		}
	}
}

// RecordEnquiryCreated increments enquiries created counter
func (m *Metrics) RecordEnquiryCreated(profile string, duplicate bool) {
	if m == nil {
		return
	}
	m.EnquiriesCreated.WithLabelValues(profile, strconv.FormatBool(duplicate)).Inc()
}

// RecordStatusTransition increments the transition counter
func (m *Metrics) RecordStatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

// RecordAssignment counts an assignment decision
func (m *Metrics) RecordAssignment(outcome, method string) {
	if m == nil {
		return
	}
	m.AssignmentOutcomes.WithLabelValues(outcome, method).Inc()
}

// RecordSLABreaches adds newly flagged breaches
func (m *Metrics) RecordSLABreaches(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SLABreaches.Add(float64(n))
}

// RecordSideEffectFailure counts a failed hook
func (m *Metrics) RecordSideEffectFailure(hook string) {
	if m == nil {
		return
	}
	m.SideEffectFailures.WithLabelValues(hook).Inc()
}

// RecordImportedRows adds inserted import rows
func (m *Metrics) RecordImportedRows(n int) {
	if m == nil {
		return
	}
	m.ImportedRows.Add(float64(n))
}

// RecordExportCreated increments exports created counter
func (m *Metrics) RecordExportCreated(format string) {
	if m == nil {
		return
	}
	m.ExportsCreated.WithLabelValues(format).Inc()
}

// RecordCacheError counts a failed cache operation
func (m *Metrics) RecordCacheError(operation string) {
	if m == nil {
		return
	}
	m.CacheErrors.WithLabelValues(operation).Inc()
}

// UpdateDBConnections updates active database connections gauge
func (m *Metrics) UpdateDBConnections(count float64) {
	if m == nil {
		return
	}
	m.DBConnections.Set(count)
}
