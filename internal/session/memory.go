package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps states in process memory with a sliding TTL. It is
// used when no Redis address is configured and in tests.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]memItem
}

type memItem struct {
	state   State
	expires time.Time
}

// NewMemoryStore creates a store; ttl <= 0 selects DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, items: make(map[string]memItem)}
}

// Load returns the state for id or ErrNotFound.
func (m *MemoryStore) Load(_ context.Context, id string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return State{}, ErrNotFound
	}
	if !m.now().Before(it.expires) {
		delete(m.items, id)
		return State{}, ErrNotFound
	}
	return it.state.Clone(), nil
}

// Save stores st under id and refreshes its expiry. Expired entries are
// swept opportunistically.
func (m *MemoryStore) Save(_ context.Context, id string, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, it := range m.items {
		if !now.Before(it.expires) {
			delete(m.items, k)
		}
	}
	m.items[id] = memItem{state: st.Clone(), expires: now.Add(m.ttl)}
	return nil
}

// Delete removes id.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
