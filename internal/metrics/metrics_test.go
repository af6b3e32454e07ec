package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	assert.NotNil(t, m)
	assert.NotNil(t, m.WorkflowExecutionsTotal)
	assert.NotNil(t, m.NodeExecutionDuration)
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.HTTPRequestDuration)
}

func TestRegisterMetrics(t *testing.T) {
	m := NewMetrics()
	registry := prometheus.NewRegistry()

	err := m.Register(registry)

	assert.NoError(t, err)
}

func TestRegisterMetricsTwice(t *testing.T) {
	m := NewMetrics()
	registry := prometheus.NewRegistry()
	m.Register(registry)

	err := m.Register(registry)

	assert.Error(t, err)
}

func TestRecordWorkflowExecution(t *testing.T) {
	m := NewMetrics()
	registry := prometheus.NewRegistry()
	m.Register(registry)

	m.RecordWorkflowExecution("completed")

	metrics, err := registry.Gather()
	assert.NoError(t, err)

	found := false
	for _, metric := range metrics {
		if metric.GetName() == "workflow_executions_total" {
			found = true
			assert.Equal(t, 1, len(metric.GetMetric()))
		}
	}
	assert.True(t, found, "workflow executions counter should be present")
}

func TestRecordNodeExecution(t *testing.T) {
	m := NewMetrics()
	registry := prometheus.NewRegistry()
	m.Register(registry)

	m.RecordNodeExecution("send_sms", 0.25)

	metrics, err := registry.Gather()
	assert.NoError(t, err)

	found := false
	for _, metric := range metrics {
		if metric.GetName() == "node_execution_duration_seconds" {
			found = true
		}
	}
	assert.True(t, found, "node execution duration histogram should be present")
}

func TestRecordHTTPRequest(t *testing.T) {
	m := NewMetrics()
	registry := prometheus.NewRegistry()
	m.Register(registry)

	m.RecordHTTPRequest("GET", "/workflows/validate", "200", 0.1)

	metrics, err := registry.Gather()
	assert.NoError(t, err)

	foundCounter := false
	foundHistogram := false
	for _, metric := range metrics {
		if metric.GetName() == "http_requests_total" {
			foundCounter = true
		}
		if metric.GetName() == "http_request_duration_seconds" {
			foundHistogram = true
		}
	}
	assert.True(t, foundCounter, "HTTP requests counter should be present")
	assert.True(t, foundHistogram, "HTTP request duration histogram should be present")
}
