package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const shardCount = 32

type shard struct {
	mu   sync.Mutex
	byID map[string]*Record
}

// MemoryStore is an in-process Session Store. Record storage is sharded by
// session id hash so operations on unrelated sessions never contend. The
// secondary (subscriber, channel) index is small (one active session per
// pair) and is guarded by its own mutex rather than sharded, since it must
// be checked atomically against record creation to uphold the
// at-most-one-active-session invariant.
type MemoryStore struct {
	shards [shardCount]*shard

	secondaryMu sync.Mutex
	bySecond    map[string]string // "subscriber\x00channel" -> session_id

	now func() time.Time
}

// NewMemoryStore returns a ready-to-use in-process store. now defaults to
// time.Now and is overridable for deterministic tests.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	s := &MemoryStore{now: now, bySecond: make(map[string]string)}
	for i := range s.shards {
		s.shards[i] = &shard{byID: make(map[string]*Record)}
	}
	return s
}

func (s *MemoryStore) shardFor(sessionID string) *shard {
	var h uint32
	for i := 0; i < len(sessionID); i++ {
		h = h*31 + uint32(sessionID[i])
	}
	return s.shards[h%shardCount]
}

func secondaryKey(subscriber, channel string) string {
	return subscriber + "\x00" + channel
}

// recordLocked fetches a record by id under its shard lock, expiring it in
// place if its TTL has elapsed. Caller must hold sh.mu.
func (s *MemoryStore) recordLocked(sh *shard, sessionID string, now time.Time) *Record {
	rec, ok := sh.byID[sessionID]
	if !ok {
		return nil
	}
	if rec.Active && rec.expired(now) {
		s.dropSecondaryIndex(rec)
		rec.Active = false
	}
	return rec
}

// dropSecondaryIndex removes rec's (subscriber, channel) index entry if it
// still points at rec. Safe to call with or without the record's shard
// lock held, since it only touches the separate secondary-index mutex.
func (s *MemoryStore) dropSecondaryIndex(rec *Record) {
	s.secondaryMu.Lock()
	skey := secondaryKey(rec.Subscriber, rec.Channel)
	if s.bySecond[skey] == rec.SessionID {
		delete(s.bySecond, skey)
	}
	s.secondaryMu.Unlock()
}

func (s *MemoryStore) Create(channel, subscriber string, initialData map[string]interface{}, ttl time.Duration) (*Record, error) {
	now := s.now()
	skey := secondaryKey(subscriber, channel)

	s.secondaryMu.Lock()
	if existingID, ok := s.bySecond[skey]; ok {
		sh := s.shardFor(existingID)
		sh.mu.Lock()
		existing := s.recordLocked(sh, existingID, now)
		stillActive := existing != nil && existing.Active
		sh.mu.Unlock()
		if stillActive {
			s.secondaryMu.Unlock()
			return nil, ErrConflict
		}
	}

	id := uuid.NewString()
	data := make(map[string]interface{}, len(initialData))
	for k, v := range initialData {
		data[k] = v
	}
	rec := &Record{
		SessionID:      id,
		Channel:        channel,
		Subscriber:     subscriber,
		Data:           data,
		Active:         true,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		rec.ExpiresAt = &exp
	}
	s.bySecond[skey] = id
	s.secondaryMu.Unlock()

	sh := s.shardFor(id)
	sh.mu.Lock()
	sh.byID[id] = rec
	sh.mu.Unlock()

	return clone(rec), nil
}

func (s *MemoryStore) Get(sessionID string) (*Record, error) {
	sh := s.shardFor(sessionID)
	now := s.now()

	sh.mu.Lock()
	rec := s.recordLocked(sh, sessionID, now)
	var result *Record
	if rec != nil && rec.Active {
		result = clone(rec)
	}
	sh.mu.Unlock()

	return result, nil
}

func (s *MemoryStore) FindActive(subscriber, channel string) (*Record, error) {
	s.secondaryMu.Lock()
	id, ok := s.bySecond[secondaryKey(subscriber, channel)]
	s.secondaryMu.Unlock()
	if !ok {
		return nil, nil
	}
	return s.Get(id)
}

func (s *MemoryStore) UpdateData(sessionID string, partial map[string]interface{}) (*Record, error) {
	sh := s.shardFor(sessionID)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec := s.recordLocked(sh, sessionID, now)
	if rec == nil || !rec.Active {
		return nil, ErrNotFound
	}
	for k, v := range partial {
		rec.Data[k] = v
	}
	rec.LastActivityAt = now
	return clone(rec), nil
}

func (s *MemoryStore) Touch(sessionID string) error {
	sh := s.shardFor(sessionID)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec := s.recordLocked(sh, sessionID, now)
	if rec == nil || !rec.Active {
		return nil
	}
	rec.LastActivityAt = now
	return nil
}

// End sets a record inactive and drops its secondary index entry. The
// record itself is retained in its shard, but Get returns nil for it, just
// as for an unknown id.
func (s *MemoryStore) End(sessionID string) error {
	sh := s.shardFor(sessionID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.byID[sessionID]
	if !ok || !rec.Active {
		return nil
	}
	s.dropSecondaryIndex(rec)
	rec.Active = false
	return nil
}

func (s *MemoryStore) Sweep() (int, error) {
	now := s.now()
	count := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, rec := range sh.byID {
			if rec.Active && rec.expired(now) {
				s.dropSecondaryIndex(rec)
				rec.Active = false
				count++
			}
		}
		sh.mu.Unlock()
	}
	return count, nil
}
