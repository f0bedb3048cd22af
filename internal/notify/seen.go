package notify

import (
	"context"
	"sync"
	"time"
)

// SeenStore remembers which (viewer, message) pairs were already notified.
// MarkSeen returns true only for the first call with a given key.
type SeenStore interface {
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemorySeen is a bounded in-process SeenStore. When full, the oldest keys
// are evicted first.
type MemorySeen struct {
	mu    sync.Mutex
	limit int
	exp   map[string]time.Time
	order []string
	now   func() time.Time
}

func NewMemorySeen(limit int) *MemorySeen {
	return &MemorySeen{limit: limit, exp: make(map[string]time.Time), now: time.Now}
}

func (m *MemorySeen) MarkSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.exp[key]; ok && now.Before(exp) {
		return false, nil
	}
	if _, ok := m.exp[key]; !ok {
		m.order = append(m.order, key)
	}
	m.exp[key] = now.Add(ttl)

	for len(m.order) > m.limit {
		delete(m.exp, m.order[0])
		m.order = m.order[1:]
	}
	return true, nil
}
