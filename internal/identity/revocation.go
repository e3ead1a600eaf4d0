package identity

import (
	"context"
	"sync"
	"time"
)

// Revocations records session ids (the "jti" claim) that were signed out
// before they expired.
type Revocations interface {
	Revoke(ctx context.Context, jti string, expires time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MemoryRevocations is an in-process Revocations. Entries are pruned once
// the token they name has expired.
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations returns an empty MemoryRevocations.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (r *MemoryRevocations) Revoke(_ context.Context, jti string, expires time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for id, exp := range r.entries {
		if !exp.After(now) {
			delete(r.entries, id)
		}
	}
	if expires.After(now) {
		r.entries[jti] = expires
	}
	return nil
}

func (r *MemoryRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.entries[jti]
	return ok && exp.After(r.now()), nil
}

// Len returns the number of live entries.
func (r *MemoryRevocations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
