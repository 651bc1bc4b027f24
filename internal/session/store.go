package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/motioncourse/web/internal/models"
)

// ErrNotFound indicates no identity is stored for the session id.
var ErrNotFound = errors.New("session not found")

// Store keeps the display identity of each browser session. Save always
// replaces the stored user wholesale.
type Store interface {
	Load(ctx context.Context, id string) (models.User, error)
	Save(ctx context.Context, id string, user models.User) error
	Delete(ctx context.Context, id string) error
}

type memoryRecord struct {
	user      models.User
	expiresAt time.Time
}

// MemoryStore implements Store with an in-process map. Entries expire after the
// configured TTL.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore returns a Store backed by an in-memory map.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &MemoryStore{
		records: make(map[string]memoryRecord),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Load retrieves the user stored for id.
func (s *MemoryStore) Load(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	record, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return models.User{}, ErrNotFound
	}
	if !s.now().Before(record.expiresAt) {
		s.mu.Lock()
		delete(s.records, id)
		s.mu.Unlock()
		return models.User{}, ErrNotFound
	}
	return record.user, nil
}

// Save stores user under id and restarts its expiry.
func (s *MemoryStore) Save(_ context.Context, id string, user models.User) error {
	if id == "" {
		return errors.New("session id must be provided")
	}
	now := s.now()
	s.mu.Lock()
	s.records[id] = memoryRecord{user: user, expiresAt: now.Add(s.ttl)}
	s.gcLocked(now)
	s.mu.Unlock()
	return nil
}

// Delete removes the user stored for id.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return nil
}

// Len reports how many sessions are held. Useful for tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) gcLocked(now time.Time) {
	for id, record := range s.records {
		if !now.Before(record.expiresAt) {
			delete(s.records, id)
		}
	}
}
