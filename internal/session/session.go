// Package session implements the Session Store: a TTL-keyed record store
// with a secondary (subscriber, channel) -> session_id index enforcing
// at-most-one active session per subscriber/channel pair.
package session

import (
	"errors"
	"time"
)

var (
	ErrConflict    = errors.New("session_conflict")
	ErrNotFound    = errors.New("session_not_found")
)

// Record is one session's state.
type Record struct {
	SessionID      string
	Channel        string
	Subscriber     string
	Data           map[string]interface{}
	Active         bool
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      *time.Time
}

func (r *Record) expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Store is the Session Store contract; both the in-process and
// Redis-backed implementations satisfy it identically.
type Store interface {
	Create(channel, subscriber string, initialData map[string]interface{}, ttl time.Duration) (*Record, error)
	Get(sessionID string) (*Record, error)
	FindActive(subscriber, channel string) (*Record, error)
	UpdateData(sessionID string, partial map[string]interface{}) (*Record, error)
	Touch(sessionID string) error
	End(sessionID string) error
	Sweep() (int, error)
}

func clone(r *Record) *Record {
	if r == nil {
		return nil
	}
	c := *r
	data := make(map[string]interface{}, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	c.Data = data
	return &c
}
