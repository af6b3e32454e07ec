package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors exposed at /metrics.
type Metrics struct {
	WorkflowExecutionsTotal *prometheus.CounterVec
	NodeExecutionDuration   *prometheus.HistogramVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance with all collectors initialized.
func NewMetrics() *Metrics {
	return &Metrics{
		WorkflowExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_executions_total",
				Help: "Total number of workflow invocations by final status",
			},
			[]string{"status"},
		),
		NodeExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "node_execution_duration_seconds",
				Help:    "Node execution duration in seconds, by node type",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"node_type"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of API requests by method, path, and status",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// Register registers all metrics with the provided registry.
func (m *Metrics) Register(registry *prometheus.Registry) error {
	collectors := []prometheus.Collector{
		m.WorkflowExecutionsTotal,
		m.NodeExecutionDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// RecordWorkflowExecution records one invocation's final status.
func (m *Metrics) RecordWorkflowExecution(status string) {
	m.WorkflowExecutionsTotal.WithLabelValues(status).Inc()
}

// RecordNodeExecution records one node's execution duration.
func (m *Metrics) RecordNodeExecution(nodeType string, durationSeconds float64) {
	m.NodeExecutionDuration.WithLabelValues(nodeType).Observe(durationSeconds)
}

// RecordHTTPRequest records an API request's method, path, status, and duration.
func (m *Metrics) RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}
