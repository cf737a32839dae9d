package infra

import (
	"sync"

	"admission-gateway/middleware/ratelimit/domain"
)

// MemoryRegistry guarda o LimitProfile por chave, com defaults definidos na construção.
type MemoryRegistry struct {
	clock     Clock
	perSecond uint
	perMinute uint
	entries   *table[registryEntry]
}

type registryEntry struct {
	mu      sync.Mutex
	profile domain.LimitProfile
	loaded  bool
}

type RegistryOption func(*MemoryRegistry)

func WithRegistryClock(c Clock) RegistryOption {
	return func(r *MemoryRegistry) { r.clock = c }
}

func NewMemoryRegistry(perSecond, perMinute uint, opts ...RegistryOption) *MemoryRegistry {
	r := &MemoryRegistry{
		perSecond: perSecond,
		perMinute: perMinute,
	}
	r.entries = newTable(func() *registryEntry { return &registryEntry{} })
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MemoryRegistry) Defaults() (perSecond, perMinute uint) { return r.perSecond, r.perMinute }

// Get implementa domain.LimitRegistry.
func (r *MemoryRegistry) Get(key domain.Key) domain.LimitProfile {
	ent := r.entries.get(key)

	ent.mu.Lock()
	defer ent.mu.Unlock()

	r.materialize(ent)
	return ent.profile
}

// Update aplica só os campos presentes.
func (r *MemoryRegistry) Update(key domain.Key, u domain.LimitUpdate) {
	ent := r.entries.get(key)

	ent.mu.Lock()
	defer ent.mu.Unlock()

	r.materialize(ent)
	if u.Empty() {
		return
	}
	if u.PerSecond != nil {
		ent.profile.MaxPerSecond = *u.PerSecond
	}
	if u.PerMinute != nil {
		ent.profile.MaxPerMinute = *u.PerMinute
	}
	if u.ObservedAt != nil {
		ent.profile.UpdatedAt = *u.ObservedAt
	} else {
		ent.profile.UpdatedAt = r.clock.now()
	}
}

func (r *MemoryRegistry) Reset(key domain.Key) { _ = r.entries.delete(key) }

func (r *MemoryRegistry) ResetAll() { _ = r.entries.clear() }

func (r *MemoryRegistry) Keys() []domain.Key { return r.entries.keys() }

func (r *MemoryRegistry) materialize(ent *registryEntry) {
	if ent.loaded {
		return
	}
	ent.profile = domain.LimitProfile{
		MaxPerSecond: r.perSecond,
		MaxPerMinute: r.perMinute,
		UpdatedAt:    r.clock.now(),
	}
	ent.loaded = true
}

var _ domain.LimitRegistry = (*MemoryRegistry)(nil)
