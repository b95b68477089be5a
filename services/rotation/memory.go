package rotation

import (
	"context"
	"sync"
	"time"
)

// Record is one slot shown to a user.
type Record struct {
	SlotKey   string
	OfferedAt time.Time
}

// Memory remembers which slots were recently shown to each user so that
// repeated requests surface different suggestions.
type Memory interface {
	// Recent returns the records younger than the TTL.
	Recent(ctx context.Context, userKey string) ([]Record, error)
	Record(ctx context.Context, userKey, slotKey string) error
	Reset(ctx context.Context, userKey string) error
}

// Recently returns the slot keys of records as a set.
func Recently(records []Record) map[string]struct{} {
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		set[r.SlotKey] = struct{}{}
	}
	return set
}

type userLog struct {
	mu      sync.Mutex
	records []Record
}

// InProcessMemory keeps rotation records in this process only.
type InProcessMemory struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	users map[string]*userLog
}

func NewInProcessMemory(ttl time.Duration) *InProcessMemory {
	return &InProcessMemory{ttl: ttl, now: time.Now, users: make(map[string]*userLog)}
}

// WithClock replaces the time source, for tests.
func (m *InProcessMemory) WithClock(now func() time.Time) *InProcessMemory {
	m.now = now
	return m
}

func (m *InProcessMemory) log(userKey string, create bool) *userLog {
	m.mu.RLock()
	l, ok := m.users[userKey]
	m.mu.RUnlock()
	if ok || !create {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok = m.users[userKey]; !ok {
		l = &userLog{}
		m.users[userKey] = l
	}
	return l
}

func (m *InProcessMemory) fresh(records []Record, now time.Time) []Record {
	kept := records[:0]
	for _, r := range records {
		if now.Sub(r.OfferedAt) < m.ttl {
			kept = append(kept, r)
		}
	}
	return kept
}

func (m *InProcessMemory) Recent(_ context.Context, userKey string) ([]Record, error) {
	l := m.log(userKey, false)
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = m.fresh(l.records, m.now())
	return append([]Record(nil), l.records...), nil
}

// Record holds m.mu for reading while it appends, so Prune cannot drop the
// user's log in between and lose the record.
func (m *InProcessMemory) Record(_ context.Context, userKey, slotKey string) error {
	for {
		m.mu.RLock()
		l, ok := m.users[userKey]
		if ok {
			m.append(l, slotKey)
			m.mu.RUnlock()
			return nil
		}
		m.mu.RUnlock()
		m.log(userKey, true)
	}
}

func (m *InProcessMemory) append(l *userLog, slotKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := m.now()
	l.records = m.fresh(l.records, now)
	for i := range l.records {
		if l.records[i].SlotKey == slotKey {
			l.records[i].OfferedAt = now
			return
		}
	}
	l.records = append(l.records, Record{SlotKey: slotKey, OfferedAt: now})
}

func (m *InProcessMemory) Reset(_ context.Context, userKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userKey)
	return nil
}

// Prune drops expired records and forgets users left with none.
func (m *InProcessMemory) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for key, l := range m.users {
		l.mu.Lock()
		l.records = m.fresh(l.records, now)
		empty := len(l.records) == 0
		l.mu.Unlock()
		if empty {
			delete(m.users, key)
			removed++
		}
	}
	return removed
}

// StartJanitor prunes every interval until ctx is done.
func (m *InProcessMemory) StartJanitor(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Prune()
			}
		}
	}()
}
