package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	c := New()
	entry := &Entry{Type: "noop", Category: CategoryLogic}

	require.NoError(t, c.Register(entry))

	got, ok := c.Lookup("noop")
	require.True(t, ok)
	assert.Same(t, entry, got)
}

func TestRegisterDuplicateFails(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(&Entry{Type: "noop"}))

	err := c.Register(&Entry{Type: "noop"})
	assert.Error(t, err)
}

func TestLookupUnknownType(t *testing.T) {
	c := New()
	_, ok := c.Lookup("does_not_exist")
	assert.False(t, ok)
}

func TestByCategory(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(&Entry{Type: "a", Category: CategoryAction}))
	require.NoError(t, c.Register(&Entry{Type: "b", Category: CategoryLogic}))
	require.NoError(t, c.Register(&Entry{Type: "c", Category: CategoryAction}))

	actions := c.ByCategory(CategoryAction)
	assert.Len(t, actions, 2)
}

func TestEntryValidateConfig_SchemaFailureSkipsCustomValidate(t *testing.T) {
	customRan := false
	e := &Entry{
		Schema: compose(requiredString("name")),
		CustomValidate: func(map[string]interface{}) []FieldError {
			customRan = true
			return nil
		},
	}

	result := e.ValidateConfig(map[string]interface{}{})
	assert.False(t, result.OK)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "name", result.Errors[0].Path)
	assert.False(t, customRan, "custom validate must not run once the declarative schema already failed")
}

func TestEntryValidateConfig_CustomValidateRunsOnSchemaSuccess(t *testing.T) {
	e := &Entry{
		Schema: compose(requiredString("name")),
		CustomValidate: func(cfg map[string]interface{}) []FieldError {
			return []FieldError{{Path: "name", Message: "rejected by custom rule"}}
		},
	}

	result := e.ValidateConfig(map[string]interface{}{"name": "x"})
	assert.False(t, result.OK)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "rejected by custom rule", result.Errors[0].Message)
}

func TestEntryValidateConfig_OK(t *testing.T) {
	e := &Entry{Schema: compose(requiredString("name"))}
	result := e.ValidateConfig(map[string]interface{}{"name": "x"})
	assert.True(t, result.OK)
	assert.Empty(t, result.Errors)
}

func TestRegisterDefaults_PopulatesKnownNodeTypes(t *testing.T) {
	c := New()
	require.NoError(t, RegisterDefaults(c))

	for _, nodeType := range []string{
		"sms_received", "ussd_session_start", "incoming_call", "payment_callback", "scheduled", "http_webhook",
		"send_sms", "send_ussd_response", "initiate_call", "play_ivr", "collect_dtmf", "request_payment", "refund_payment", "http_request",
		"condition", "switch", "delay", "retry", "rate_limit", "merge",
		"session_read", "session_write", "session_end",
	} {
		_, ok := c.Lookup(nodeType)
		assert.True(t, ok, "expected %q to be registered", nodeType)
	}
}

func TestRegisterDefaults_ConditionRequiresExpression(t *testing.T) {
	c := New()
	require.NoError(t, RegisterDefaults(c))

	entry, ok := c.Lookup("condition")
	require.True(t, ok)

	result := entry.ValidateConfig(map[string]interface{}{})
	assert.False(t, result.OK)

	result = entry.ValidateConfig(map[string]interface{}{"expression": "{{amount}} > 100"})
	assert.True(t, result.OK)
}

func TestRegisterDefaults_RequestPaymentRejectsUnknownTransactionType(t *testing.T) {
	c := New()
	require.NoError(t, RegisterDefaults(c))

	entry, ok := c.Lookup("request_payment")
	require.True(t, ok)

	result := entry.ValidateConfig(map[string]interface{}{
		"transaction_type": "not_a_real_type",
		"amount":           float64(100),
		"currency":         "KES",
		"phone_number":     "+254700000000",
		"product_name":     "widget",
	})
	assert.False(t, result.OK)
}
