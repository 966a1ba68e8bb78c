package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the mutation boundary, side effects and realtime streams.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	operationTotal  *prometheus.CounterVec
	operationTime   *prometheus.HistogramVec
	auditFailures   *prometheus.CounterVec
	sideEffects     *prometheus.CounterVec
	subscriptions   *prometheus.GaugeVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	operationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "boundary_operations_total",
		Help: "Boundary calls by operation and outcome",
	}, []string{"operation", "outcome"})

	operationTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "boundary_operation_duration_seconds",
		Help:    "Duration of boundary calls in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	auditFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_append_failures_total",
		Help: "Audit entries that could not be persisted",
	}, []string{"action"})

	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "side_effect_jobs_total",
		Help: "Detached side effect attempts by job type and outcome",
	}, []string{"type", "outcome"})

	subscriptions := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "realtime_subscriptions",
		Help: "Open realtime subscriptions per collection",
	}, []string{"collection"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, operationTotal, operationTime, auditFailures, sideEffects, subscriptions, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		operationTotal:  operationTotal,
		operationTime:   operationTime,
		auditFailures:   auditFailures,
		sideEffects:     sideEffects,
		subscriptions:   subscriptions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveOperation records one boundary call. outcome is "OK" or an error code.
func (m *MetricsService) ObserveOperation(op, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationTotal.WithLabelValues(op, outcome).Inc()
	m.operationTime.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordAuditFailure counts an audit entry lost after a committed mutation.
func (m *MetricsService) RecordAuditFailure(action string) {
	if m == nil {
		return
	}
	m.auditFailures.WithLabelValues(action).Inc()
}

// ObserveSideEffect matches jobs.Observer.
func (m *MetricsService) ObserveSideEffect(jobType, outcome string) {
	if m == nil {
		return
	}
	m.sideEffects.WithLabelValues(jobType, outcome).Inc()
}

// SubscriptionOpened implements realtime.SubscriptionObserver.
func (m *MetricsService) SubscriptionOpened(collection string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(collection).Inc()
}

// SubscriptionClosed implements realtime.SubscriptionObserver.
func (m *MetricsService) SubscriptionClosed(collection string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(collection).Dec()
}
