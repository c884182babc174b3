package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps encoded sessions in process memory. Sessions expire
// after idle time without a Save.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	idle     time.Duration
	now      func() time.Time
	closed   bool
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryStore(idle time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		idle:     idle,
		now:      time.Now,
	}
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	e, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	if m.expired(e) {
		delete(m.sessions, id)
		return nil, nil
	}
	return Unmarshal(e.data)
}

func (m *MemoryStore) Save(ctx context.Context, id string, c *Context) error {
	data, err := Marshal(c)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}

	e := memoryEntry{data: data}
	if m.idle > 0 {
		e.expiresAt = m.now().Add(m.idle)
	}
	m.sessions[id] = e
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, e := range m.sessions {
		if m.expired(e) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.sessions = make(map[string]memoryEntry)
	return nil
}

func (m *MemoryStore) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && m.now().After(e.expiresAt)
}
