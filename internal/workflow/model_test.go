package workflow

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDescription() Description {
	return Description{
		Metadata: Metadata{ID: "11111111-1111-1111-1111-111111111111", Version: 1, Name: "greet"},
		Trigger:  Node{ID: "trigger", Type: "sms_received"},
		Nodes:    []Node{{ID: "n1", Type: "delay"}},
		Edges:    []Edge{{ID: "e1", Source: "trigger", Target: "n1"}},
	}
}

func TestDescription_ValidPasses(t *testing.T) {
	v := validator.New()
	assert.NoError(t, v.Struct(validDescription()))
}

func TestDescription_MissingMetadataIDFails(t *testing.T) {
	v := validator.New()
	desc := validDescription()
	desc.Metadata.ID = ""

	err := v.Struct(desc)
	require.Error(t, err)
	verrs := err.(validator.ValidationErrors)
	assert.Equal(t, "required", verrs[0].Tag())
}

func TestDescription_NonUUIDMetadataIDFails(t *testing.T) {
	v := validator.New()
	desc := validDescription()
	desc.Metadata.ID = "not-a-uuid"

	err := v.Struct(desc)
	require.Error(t, err)
	verrs := err.(validator.ValidationErrors)
	assert.Equal(t, "uuid", verrs[0].Tag())
}

func TestMetadata_VersionMustBeAtLeastOne(t *testing.T) {
	v := validator.New()
	desc := validDescription()
	desc.Metadata.Version = 0

	require.Error(t, v.Struct(desc))
}

func TestMetadata_NameRequired(t *testing.T) {
	v := validator.New()
	desc := validDescription()
	desc.Metadata.Name = ""

	require.Error(t, v.Struct(desc))
}

func TestNode_DiveValidatesEachElement(t *testing.T) {
	v := validator.New()
	desc := validDescription()
	desc.Nodes = append(desc.Nodes, Node{Type: "delay"}) // missing ID

	err := v.Struct(desc)
	require.Error(t, err)
	verrs := err.(validator.ValidationErrors)
	found := false
	for _, fe := range verrs {
		if fe.Field() == "ID" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEdge_MissingSourceOrTargetFails(t *testing.T) {
	v := validator.New()
	desc := validDescription()
	desc.Edges[0].Target = ""

	require.Error(t, v.Struct(desc))
}

func TestRetryPolicy_MaxAttemptsMustBeAtLeastOne(t *testing.T) {
	v := validator.New()
	desc := validDescription()
	desc.Nodes[0].RetryPolicy = &RetryPolicy{MaxAttempts: 0, BackoffMultiplier: 1}

	require.Error(t, v.Struct(desc))
}

func TestRetryPolicy_BackoffMultiplierMustBeAtLeastOne(t *testing.T) {
	v := validator.New()
	desc := validDescription()
	desc.Nodes[0].RetryPolicy = &RetryPolicy{MaxAttempts: 1, BackoffMultiplier: 0.5}

	require.Error(t, v.Struct(desc))
}

func TestTriggerTypes_KnownEntries(t *testing.T) {
	assert.True(t, TriggerTypes["sms_received"])
	assert.True(t, TriggerTypes["ussd_session_start"])
	assert.False(t, TriggerTypes["delay"])
}
