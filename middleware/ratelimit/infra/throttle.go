package infra

import (
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// MemoryTracker guarda o cooldown por chave.
type MemoryTracker struct {
	clock   Clock
	entries *table[throttleEntry]
}

type throttleEntry struct {
	mu      sync.Mutex
	until   time.Time // zero => sem cooldown
	removed bool
}

type TrackerOption func(*MemoryTracker)

func WithTrackerClock(c Clock) TrackerOption {
	return func(t *MemoryTracker) { t.clock = c }
}

func NewMemoryTracker(opts ...TrackerOption) *MemoryTracker {
	t := &MemoryTracker{
		entries: newTable(func() *throttleEntry { return &throttleEntry{} }),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// IsThrottled implementa domain.ThrottleTracker. Não cria nem altera estado.
func (t *MemoryTracker) IsThrottled(key domain.Key) bool {
	until, ok := t.CooldownUntil(key)
	return ok && t.clock.now().Before(until)
}

// SetCooldown sobrescreve o cooldown com now+d (last writer wins).
// Quem precisa de "só estender" deve ler, comparar e então escrever.
func (t *MemoryTracker) SetCooldown(key domain.Key, d time.Duration) error {
	if d <= 0 {
		return domain.InvalidArgument("cooldown must be positive, got %s", d)
	}

	until := t.clock.now().Add(d)
	for !t.entries.get(key).set(until) {
	}
	return nil
}

// set devolve false se a entrada já foi removida por Clear.
func (e *throttleEntry) set(until time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false
	}
	e.until = until
	return true
}

func (e *throttleEntry) markRemoved() {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.removed = true
	e.until = time.Time{}
	e.mu.Unlock()
}

// CooldownUntil devolve o fim do cooldown, se houver um ainda no futuro.
func (t *MemoryTracker) CooldownUntil(key domain.Key) (time.Time, bool) {
	ent, ok := t.entries.lookup(key)
	if !ok {
		return time.Time{}, false
	}

	ent.mu.Lock()
	until := ent.until
	ent.mu.Unlock()

	if until.IsZero() || !t.clock.now().Before(until) {
		return time.Time{}, false
	}
	return until, true
}

func (t *MemoryTracker) Clear(key domain.Key) { t.entries.delete(key).markRemoved() }

func (t *MemoryTracker) ClearAll() {
	for _, ent := range t.entries.clear() {
		ent.markRemoved()
	}
}

func (t *MemoryTracker) Keys() []domain.Key { return t.entries.keys() }

var _ domain.ThrottleTracker = (*MemoryTracker)(nil)
