package identity

import (
	"context"
	"sync"

	"mailbox_server/internal/model"
)

// MemoryRepo is an in-process identity store for tests and development.
type MemoryRepo struct {
	mu         sync.RWMutex
	identities map[string]model.Identity
}

func NewMemoryRepo(identities ...*model.Identity) *MemoryRepo {
	r := &MemoryRepo{identities: make(map[string]model.Identity)}
	for _, id := range identities {
		r.identities[id.Account] = *id
	}
	return r
}

func (r *MemoryRepo) ResolveAccount(ctx context.Context, account string) (*model.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.identities[account]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}

func (r *MemoryRepo) Save(ctx context.Context, identity *model.Identity) error {
	if identity.Account == "" || identity.Owner.UID == "" {
		return ErrInvalidIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[identity.Account] = *identity
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, account string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.identities, account)
	return nil
}
