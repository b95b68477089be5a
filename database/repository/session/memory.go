package sessionRepo

import (
	"context"
	"sync"
	"time"

	"schedulebot/models"
)

// MemorySessionStore keeps sessions in process. Sessions are lost on restart.
type MemorySessionStore struct {
	mu      sync.RWMutex
	records map[string]sessionRecord
	now     func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{records: make(map[string]sessionRecord), now: time.Now}
}

func (s *MemorySessionStore) Load(_ context.Context, userKey string) (*models.Session, error) {
	s.mu.RLock()
	r, ok := s.records[userKey]
	s.mu.RUnlock()
	if !ok {
		return models.NewSession(userKey), nil
	}
	return fromRecord(r), nil
}

func (s *MemorySessionStore) Save(_ context.Context, userKey string, session *models.Session) error {
	r, err := toRecord(userKey, session, s.now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[userKey] = r
	s.mu.Unlock()
	return nil
}
