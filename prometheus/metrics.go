package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Login counter
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_login_total",
			Help: "Total number of login attempts",
		},
	)

	// Lead operation counter
	LeadOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_lead_operations_total",
			Help: "Total number of lead lifecycle operations",
		},
		[]string{"operation"}, // "create", "assign", "transition", "reopen", "delete"
	)

	// Event operation counter
	EventOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_event_operations_total",
			Help: "Total number of event lifecycle operations",
		},
		[]string{"operation"}, // "create", "assign_volunteer", "unassign_volunteer", "complete", "cancel"
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_auth_errors_total",
			Help: "Total number of authentication and authorization errors",
		},
		[]string{"type"}, // "invalid_session", "forbidden", "cross_tenant", etc.
	)

	// Business rule rejection counter
	RuleRejectionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_rule_rejections_total",
			Help: "Total number of business rule rejections",
		},
		[]string{"rule"}, // "invalid_transition", "capacity_exceeded", "already_terminal", etc.
	)

	// Notification failure counter
	NotifyFailureCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_notify_failures_total",
			Help: "Total number of failed lifecycle notifications",
		},
		[]string{"sink"},
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Document store operation duration
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_store_operation_duration_seconds",
			Help:    "Duration of document store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "get", "put", "patch", "delete", "query"
	)
)

// Gauge metrics
var (
	// Open watch streams
	ActiveWatchGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crm_active_watch_streams",
			Help: "Number of currently open live view streams",
		},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crm_info",
			Help: "Information about the CRM service",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(LeadOperationCounter)
	prometheus.MustRegister(EventOperationCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(RuleRejectionCounter)
	prometheus.MustRegister(NotifyFailureCounter)

	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(StoreOperationDuration)

	prometheus.MustRegister(ActiveWatchGauge)
	prometheus.MustRegister(InfoGauge)

	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// RecordLeadOperation records one lead lifecycle operation
func RecordLeadOperation(operation string) {
	LeadOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordEventOperation records one event lifecycle operation
func RecordEventOperation(operation string) {
	EventOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordAuthError records an authentication/authorization error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordRuleRejection records a business rule rejection
func RecordRuleRejection(rule string) {
	RuleRejectionCounter.With(prometheus.Labels{"rule": rule}).Inc()
}

// RecordNotifyFailure records a failed lifecycle notification
func RecordNotifyFailure(sink string) {
	NotifyFailureCounter.With(prometheus.Labels{"sink": sink}).Inc()
}

// TrackStoreOperation measures document store operation durations
func TrackStoreOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		StoreOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}
