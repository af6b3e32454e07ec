package workflowstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atworkflow/engine/internal/workflow"
)

func sampleDescription(id string, version int, triggerType string) workflow.Description {
	return workflow.Description{
		Metadata: workflow.Metadata{ID: id, Version: version, Name: "sample"},
		Trigger:  workflow.Node{ID: "trigger", Type: triggerType},
	}
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	s := NewMemoryStore()
	desc := sampleDescription("11111111-1111-1111-1111-111111111111", 1, "sms_received")
	require.NoError(t, s.Save(desc))

	got, err := s.Get(desc.Metadata.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "sample", got.Metadata.Name)

	_, err = s.Get(desc.Metadata.ID, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_LatestTracksHighestVersion(t *testing.T) {
	s := NewMemoryStore()
	id := "11111111-1111-1111-1111-111111111111"
	require.NoError(t, s.Save(sampleDescription(id, 1, "sms_received")))
	require.NoError(t, s.Save(sampleDescription(id, 3, "sms_received")))
	require.NoError(t, s.Save(sampleDescription(id, 2, "sms_received")))

	got, err := s.Latest(id)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Metadata.Version)
}

func TestMemoryStore_LatestUnknownIDFails(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Latest("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListByTriggerTypeReturnsLatestVersions(t *testing.T) {
	s := NewMemoryStore()
	scheduledID := "22222222-2222-2222-2222-222222222222"
	require.NoError(t, s.Save(sampleDescription(scheduledID, 1, "scheduled")))
	require.NoError(t, s.Save(sampleDescription(scheduledID, 2, "scheduled")))
	require.NoError(t, s.Save(sampleDescription("33333333-3333-3333-3333-333333333333", 1, "sms_received")))

	scheduled, err := s.ListByTriggerType("scheduled")
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, 2, scheduled[0].Metadata.Version)
}
