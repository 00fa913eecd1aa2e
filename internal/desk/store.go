package desk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"classdesk/internal/attendance"
)

// ErrNotFound is returned for unknown or expired desks.
var ErrNotFound = errors.New("desk not found")

// Record is a persisted desk.
type Record struct {
	ID        string              `json:"id"`
	Owner     string              `json:"owner"`
	SchoolID  int64               `json:"school_id"`
	Snapshot  attendance.Snapshot `json:"snapshot"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Store persists desk records between requests and restarts.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps records in process; for dev and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record)}
}

// Save stores rec, replacing any previous version.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
	return nil
}

// Load returns the record with id.
func (s *MemoryStore) Load(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Delete removes the record with id.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	return nil
}

// RedisStore keeps records as JSON strings that expire after ttl.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore builds a store writing keys under prefix.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "classdesk:desk:"
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Save writes rec and refreshes its expiry.
func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode desk %s: %w", rec.ID, err)
	}
	return s.client.Set(ctx, s.prefix+rec.ID, raw, s.ttl).Err()
}

// Load reads the record with id.
func (s *RedisStore) Load(ctx context.Context, id string) (Record, error) {
	raw, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode desk %s: %w", id, err)
	}
	return rec, nil
}

// Delete removes the record with id.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.prefix+id).Err()
}
