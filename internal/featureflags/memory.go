package featureflags

import (
	"context"
	"sync"
)

// MemoryRepository keeps flags in process. Used in tests and when no
// database is configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	flags   map[string]Flag
	changes []Change
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{flags: make(map[string]Flag)}
}

func (r *MemoryRepository) LoadFlags(context.Context) (map[string]*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Flag, len(r.flags))
	for k, f := range r.flags {
		f := f
		out[k] = &f
	}
	return out, nil
}

func (r *MemoryRepository) SaveFlags(_ context.Context, flags []*Flag, change Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range flags {
		r.flags[f.Key] = *f
	}
	r.changes = append(r.changes, change)
	return nil
}

// Changes returns the recorded change log, oldest first.
func (r *MemoryRepository) Changes() []Change {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Change(nil), r.changes...)
}

var _ Repository = (*MemoryRepository)(nil)
