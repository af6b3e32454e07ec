package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAlertMail_SetsFromAndSubject(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := buildAlertMail("alerts@workflow.local", "oncall@workflow.local", "exec-1", "wf-1", "bad_input", "permanent failure", at)

	require.NotNil(t, msg)
	assert.Equal(t, "alerts@workflow.local", msg.From.Address)
	assert.Equal(t, "Workflow execution failed: wf-1", msg.Subject)
}

func TestBuildAlertMail_SetsRecipientAndBody(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := buildAlertMail("alerts@workflow.local", "oncall@workflow.local", "exec-1", "wf-1", "bad_input", "permanent failure", at)

	require.Len(t, msg.Personalizations, 1)
	require.Len(t, msg.Personalizations[0].To, 1)
	assert.Equal(t, "oncall@workflow.local", msg.Personalizations[0].To[0].Address)

	require.Len(t, msg.Content, 1)
	assert.Contains(t, msg.Content[0].Value, "exec-1")
	assert.Contains(t, msg.Content[0].Value, "wf-1")
	assert.Contains(t, msg.Content[0].Value, "bad_input")
	assert.Contains(t, msg.Content[0].Value, "permanent failure")
	assert.Contains(t, msg.Content[0].Value, "2026-03-01T12:00:00Z")
}

func TestNewAlertSender_BindsFromAndTo(t *testing.T) {
	s := NewAlertSender("sg-key", "alerts@workflow.local", "oncall@workflow.local")
	require.NotNil(t, s)
	assert.Equal(t, "alerts@workflow.local", s.from)
	assert.Equal(t, "oncall@workflow.local", s.to)
}
