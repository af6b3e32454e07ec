package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(fixedClock(now))

	rec, err := s.Create("sms", "+254700000000", map[string]interface{}{"step": 1}, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, rec.SessionID)

	got, err := s.Get(rec.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sms", got.Channel)
	assert.Equal(t, 1, got.Data["step"])
}

func TestMemoryStore_CreateConflictsOnActiveSubscriberChannel(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(fixedClock(now))

	_, err := s.Create("sms", "+254700000000", nil, time.Hour)
	require.NoError(t, err)

	_, err = s.Create("sms", "+254700000000", nil, time.Hour)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStore_EndAllowsRecreation(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(fixedClock(now))

	first, err := s.Create("sms", "+254700000000", nil, time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.End(first.SessionID))

	second, err := s.Create("sms", "+254700000000", nil, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestMemoryStore_EndedSessionIsRetainedButNotReturned(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(fixedClock(now))

	rec, err := s.Create("sms", "+254700000000", nil, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.End(rec.SessionID))

	got, err := s.Get(rec.SessionID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_FindActive(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(fixedClock(now))

	rec, err := s.Create("ussd", "+254711111111", nil, time.Hour)
	require.NoError(t, err)

	found, err := s.FindActive("+254711111111", "ussd")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, rec.SessionID, found.SessionID)

	none, err := s.FindActive("+254711111111", "voice")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryStore_UpdateDataMergesPartial(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(fixedClock(now))

	rec, err := s.Create("sms", "+254700000000", map[string]interface{}{"a": 1}, time.Hour)
	require.NoError(t, err)

	updated, err := s.UpdateData(rec.SessionID, map[string]interface{}{"b": 2})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Data["a"])
	assert.Equal(t, 2, updated.Data["b"])
}

func TestMemoryStore_UpdateDataUnknownSessionFails(t *testing.T) {
	s := NewMemoryStore(fixedClock(time.Now()))
	_, err := s.UpdateData("does-not-exist", map[string]interface{}{"a": 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SweepExpiresAndFreesSubscriberChannel(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	s := NewMemoryStore(func() time.Time { return clock })

	_, err := s.Create("sms", "+254700000000", nil, time.Minute)
	require.NoError(t, err)

	clock = start.Add(2 * time.Minute)

	n, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Create("sms", "+254700000000", nil, time.Hour)
	assert.NoError(t, err, "subscriber/channel pair must be free again after sweep expires the old session")
}

func TestMemoryStore_TouchUpdatesLastActivity(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	s := NewMemoryStore(func() time.Time { return clock })

	rec, err := s.Create("sms", "+254700000000", nil, time.Hour)
	require.NoError(t, err)

	clock = start.Add(time.Minute)
	require.NoError(t, s.Touch(rec.SessionID))

	got, err := s.Get(rec.SessionID)
	require.NoError(t, err)
	assert.True(t, got.LastActivityAt.After(rec.LastActivityAt))
}
