package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the Redis-backed Session Store. Each record is stored as a
// JSON blob under "session:{id}" with the Redis TTL mirroring expires_at;
// the secondary index lives at "session:idx:{subscriber}:{channel}" ->
// session_id. The create-time conflict check is a WATCH/MULTI transaction
// on the secondary-index key so the check-then-set is atomic across
// concurrent clients.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore returns a Session Store backed by client. now defaults to
// time.Now and is overridable for deterministic tests.
func NewRedisStore(client *redis.Client, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, now: now}
}

type wireRecord struct {
	SessionID      string                 `json:"session_id"`
	Channel        string                 `json:"channel"`
	Subscriber     string                 `json:"subscriber"`
	Data           map[string]interface{} `json:"data"`
	Active         bool                   `json:"active"`
	CreatedAt      time.Time              `json:"created_at"`
	LastActivityAt time.Time              `json:"last_activity_at"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty"`
}

func recordKey(sessionID string) string { return "session:" + sessionID }
func indexKey(subscriber, channel string) string {
	return fmt.Sprintf("session:idx:%s:%s", subscriber, channel)
}

func toWire(r *Record) wireRecord {
	return wireRecord{
		SessionID: r.SessionID, Channel: r.Channel, Subscriber: r.Subscriber,
		Data: r.Data, Active: r.Active, CreatedAt: r.CreatedAt,
		LastActivityAt: r.LastActivityAt, ExpiresAt: r.ExpiresAt,
	}
}

func fromWire(w wireRecord) *Record {
	return &Record{
		SessionID: w.SessionID, Channel: w.Channel, Subscriber: w.Subscriber,
		Data: w.Data, Active: w.Active, CreatedAt: w.CreatedAt,
		LastActivityAt: w.LastActivityAt, ExpiresAt: w.ExpiresAt,
	}
}

func (s *RedisStore) save(ctx context.Context, pipe redis.Pipeliner, rec *Record) error {
	blob, err := json.Marshal(toWire(rec))
	if err != nil {
		return err
	}
	var ttl time.Duration = redis.KeepTTL
	var expiration time.Duration
	if rec.ExpiresAt != nil {
		expiration = time.Until(*rec.ExpiresAt)
		if expiration < 0 {
			expiration = 0
		}
		return pipe.Set(ctx, recordKey(rec.SessionID), blob, expiration).Err()
	}
	return pipe.Set(ctx, recordKey(rec.SessionID), blob, ttl).Err()
}

func (s *RedisStore) load(ctx context.Context, sessionID string) (*Record, error) {
	blob, err := s.client.Get(ctx, recordKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var w wireRecord
	if err := json.Unmarshal(blob, &w); err != nil {
		return nil, err
	}
	return fromWire(w), nil
}

func (s *RedisStore) Create(channel, subscriber string, initialData map[string]interface{}, ttl time.Duration) (*Record, error) {
	ctx := context.Background()
	now := s.now()
	ikey := indexKey(subscriber, channel)

	var created *Record
	txf := func(tx *redis.Tx) error {
		existingID, err := tx.Get(ctx, ikey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			existing, err := s.load(ctx, existingID)
			if err != nil {
				return err
			}
			if existing != nil && existing.Active && !existing.expired(now) {
				return ErrConflict
			}
		}

		id := uuid.NewString()
		data := make(map[string]interface{}, len(initialData))
		for k, v := range initialData {
			data[k] = v
		}
		rec := &Record{
			SessionID: id, Channel: channel, Subscriber: subscriber,
			Data: data, Active: true, CreatedAt: now, LastActivityAt: now,
		}
		if ttl > 0 {
			exp := now.Add(ttl)
			rec.ExpiresAt = &exp
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := s.save(ctx, pipe, rec); err != nil {
				return err
			}
			if ttl > 0 {
				return pipe.Set(ctx, ikey, id, ttl).Err()
			}
			return pipe.Set(ctx, ikey, id, 0).Err()
		})
		if err != nil {
			return err
		}
		created = rec
		return nil
	}

	if err := s.client.Watch(ctx, txf, ikey); err != nil {
		return nil, err
	}
	return clone(created), nil
}

func (s *RedisStore) Get(sessionID string) (*Record, error) {
	ctx := context.Background()
	rec, err := s.load(ctx, sessionID)
	if err != nil || rec == nil {
		return nil, err
	}
	now := s.now()
	if rec.expired(now) {
		if rec.Active {
			rec.Active = false
			_ = s.persistAndUnindex(ctx, rec)
		}
		return nil, nil
	}
	if !rec.Active {
		return nil, nil
	}
	return clone(rec), nil
}

func (s *RedisStore) persistAndUnindex(ctx context.Context, rec *Record) error {
	pipe := s.client.TxPipeline()
	_ = s.save(ctx, pipe, rec)
	pipe.Del(ctx, indexKey(rec.Subscriber, rec.Channel))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) FindActive(subscriber, channel string) (*Record, error) {
	ctx := context.Background()
	id, err := s.client.Get(ctx, indexKey(subscriber, channel)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

func (s *RedisStore) UpdateData(sessionID string, partial map[string]interface{}) (*Record, error) {
	ctx := context.Background()
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if rec == nil || !rec.Active || rec.expired(now) {
		return nil, ErrNotFound
	}
	for k, v := range partial {
		rec.Data[k] = v
	}
	rec.LastActivityAt = now
	pipe := s.client.TxPipeline()
	if err := s.save(ctx, pipe, rec); err != nil {
		return nil, err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return clone(rec), nil
}

func (s *RedisStore) Touch(sessionID string) error {
	ctx := context.Background()
	rec, err := s.load(ctx, sessionID)
	if err != nil || rec == nil || !rec.Active {
		return err
	}
	now := s.now()
	if rec.expired(now) {
		return nil
	}
	rec.LastActivityAt = now
	pipe := s.client.TxPipeline()
	if err := s.save(ctx, pipe, rec); err != nil {
		return err
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) End(sessionID string) error {
	ctx := context.Background()
	rec, err := s.load(ctx, sessionID)
	if err != nil || rec == nil {
		return err
	}
	rec.Active = false
	return s.persistAndUnindex(ctx, rec)
}

// Sweep scans active session keys and ends every expired one. Redis'
// own TTL already expires the key outright once it lapses, so Sweep
// mainly catches records created with no TTL or ones whose clock-based
// expires_at predates the key's own TTL rounding.
func (s *RedisStore) Sweep() (int, error) {
	ctx := context.Background()
	now := s.now()
	count := 0
	iter := s.client.Scan(ctx, 0, "session:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if len(key) > len("session:idx:") && key[:len("session:idx:")] == "session:idx:" {
			continue
		}
		blob, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return count, err
		}
		var w wireRecord
		if err := json.Unmarshal(blob, &w); err != nil {
			continue
		}
		rec := fromWire(w)
		if rec.Active && rec.expired(now) {
			rec.Active = false
			if err := s.persistAndUnindex(ctx, rec); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, iter.Err()
}
