package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrStoreClosed = errors.New("session: store is closed")

// Store persists session contexts between requests. Load returns (nil, nil)
// when the session does not exist or has expired. Implementations must be
// safe for concurrent use and must never hand out shared *Context values.
type Store interface {
	Load(ctx context.Context, id string) (*Context, error)
	Save(ctx context.Context, id string, c *Context) error
	Delete(ctx context.Context, id string) error
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id has the shape of an id returned by NewID.
func ValidID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.Version() == 4
}

// Locks serializes requests that belong to the same session id.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*lockEntry)}
}

// Lock blocks until id is free and returns the matching unlock function.
func (l *Locks) Lock(id string) func() {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
