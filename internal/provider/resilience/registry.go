package resilience

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Dependency is anything with a circuit breaker the registry can report on.
// Implemented by Client and Guard.
type Dependency interface {
	Name() string
	State() gobreaker.State
	Counts() gobreaker.Counts
}

// Health is a point-in-time view of one dependency.
type Health struct {
	Name           string
	State          gobreaker.State
	Counts         gobreaker.Counts
	LastSuccessAt  *time.Time
	LastFailureAt  *time.Time
	StateChangedAt *time.Time
	LastError      string
}

// Degraded reports a half-open breaker, i.e. the dependency is being probed.
func (h Health) Degraded() bool {
	return h.State == gobreaker.StateHalfOpen
}

// Down reports an open breaker.
func (h Health) Down() bool {
	return h.State == gobreaker.StateOpen
}

// Registry tracks the health of registered dependencies. A nil *Registry
// ignores every record call.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	dep            Dependency
	lastSuccessAt  *time.Time
	lastFailureAt  *time.Time
	stateChangedAt *time.Time
	lastError      string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Register adds dep, replacing any dependency with the same name.
func (r *Registry) Register(dep Dependency) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[dep.Name()] = &entry{dep: dep}
}

// record stores the outcome of one call. Rejections by an open breaker are
// not new failures and leave the timestamps alone.
func (r *Registry) record(name string, err error) {
	if r == nil || errors.Is(err, ErrCircuitOpen) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return
	}
	now := r.now()
	if !isFailure(err) {
		if err == nil {
			e.lastSuccessAt = &now
		}
		return
	}
	e.lastFailureAt = &now
	e.lastError = err.Error()
}

func (r *Registry) recordStateChange(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		now := r.now()
		e.stateChangedAt = &now
	}
}

// Health returns the health of the named dependency.
func (r *Registry) Health(name string) (Health, bool) {
	r.mu.RLock()
	e, ok := r.entries[name]
	var snap entry
	if ok {
		snap = *e
	}
	r.mu.RUnlock()

	if !ok {
		return Health{}, false
	}
	return snap.health(name), true
}

// All returns the health of every dependency, ordered by name.
func (r *Registry) All() []Health {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	snaps := make(map[string]entry, len(r.entries))
	for name, e := range r.entries {
		names = append(names, name)
		snaps[name] = *e
	}
	r.mu.RUnlock()

	sort.Strings(names)
	out := make([]Health, 0, len(names))
	for _, name := range names {
		snap := snaps[name]
		out = append(out, snap.health(name))
	}
	return out
}

// health reads the breaker, so it must run without r.mu held: breakers call
// back into the registry on state changes while holding their own lock.
func (e *entry) health(name string) Health {
	return Health{
		Name:           name,
		State:          e.dep.State(),
		Counts:         e.dep.Counts(),
		LastSuccessAt:  e.lastSuccessAt,
		LastFailureAt:  e.lastFailureAt,
		StateChangedAt: e.stateChangedAt,
		LastError:      e.lastError,
	}
}
