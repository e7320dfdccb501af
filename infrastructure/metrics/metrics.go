// Package metrics provides Prometheus metrics collection
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Query pipeline metrics
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	EnginesInFlight prometheus.Gauge
	ValuesEmitted   prometheus.Counter

	// Provider metrics
	ProviderBatchesTotal *prometheus.CounterVec
	ProviderRowsTotal    *prometheus.CounterVec
}

// New creates a new Metrics instance with all collectors registered
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being served",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "query_executions_total",
				Help: "Total number of script executions by outcome",
			},
			[]string{"service", "outcome"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "query_execution_duration_seconds",
				Help:    "Script execution duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service"},
		),
		EnginesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "query_engines_in_flight",
				Help: "Number of script engines currently executing",
			},
		),
		ValuesEmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_values_emitted_total",
				Help: "Total number of values emitted by scripts",
			},
		),
		ProviderBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_batches_total",
				Help: "Total number of batches fetched from the data source",
			},
			[]string{"service", "driver"},
		),
		ProviderRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_rows_total",
				Help: "Total number of rows fetched from the data source",
			},
			[]string{"service", "driver"},
		),
	}

	registerer.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.QueriesTotal,
		m.QueryDuration,
		m.EnginesInFlight,
		m.ValuesEmitted,
		m.ProviderBatchesTotal,
		m.ProviderRowsTotal,
	)

	return m
}

// RecordHTTPRequest records metrics for an HTTP request
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// IncrementInFlight increments the in-flight request gauge
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight request gauge
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}

// RecordQuery records the outcome and duration of a script execution
func (m *Metrics) RecordQuery(service, outcome string, duration time.Duration) {
	m.QueriesTotal.WithLabelValues(service, outcome).Inc()
	m.QueryDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordEmitted adds to the emitted-values counter
func (m *Metrics) RecordEmitted(n int) {
	m.ValuesEmitted.Add(float64(n))
}

// RecordProviderBatch records a batch fetch from the data source
func (m *Metrics) RecordProviderBatch(service, driver string, rows int) {
	m.ProviderBatchesTotal.WithLabelValues(service, driver).Inc()
	m.ProviderRowsTotal.WithLabelValues(service, driver).Add(float64(rows))
}
