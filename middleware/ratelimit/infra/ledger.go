package infra

import (
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// MemoryLedger é o ledger de timestamps em memória (janela deslizante por poda).
type MemoryLedger struct {
	clock   Clock
	entries *table[ledgerEntry]
}

type ledgerEntry struct {
	mu    sync.Mutex
	times []time.Time // ordem crescente
	// removed marca entradas tiradas da tabela por Reset; quem ainda tem o
	// ponteiro refaz o lookup em vez de gravar nelas.
	removed bool
}

type LedgerOption func(*MemoryLedger)

func WithLedgerClock(c Clock) LedgerOption {
	return func(l *MemoryLedger) { l.clock = c }
}

func NewMemoryLedger(opts ...LedgerOption) *MemoryLedger {
	l := &MemoryLedger{
		entries: newTable(func() *ledgerEntry { return &ledgerEntry{} }),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record implementa domain.Ledger.
func (l *MemoryLedger) Record(key domain.Key) {
	now := l.clock.now()
	for !l.entries.get(key).append(now) {
	}
}

// append grava now na entrada. Devolve false se a entrada já foi removida.
func (e *ledgerEntry) append(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return false
	}
	e.prune(now)
	// relógio pode andar para trás (ex.: clock de teste); mantém a ordem.
	if n := len(e.times); n > 0 && now.Before(e.times[n-1]) {
		now = e.times[n-1]
	}
	e.times = append(e.times, now)
	return true
}

// CountWithin implementa domain.Ledger.
func (l *MemoryLedger) CountWithin(key domain.Key, window time.Duration) int {
	if window <= 0 {
		return 0
	}
	if window > domain.LedgerHorizon {
		window = domain.LedgerHorizon
	}

	now := l.clock.now()
	ent := l.entries.get(key)

	ent.mu.Lock()
	defer ent.mu.Unlock()

	ent.prune(now)

	cutoff := now.Add(-window)
	count := 0
	for i := len(ent.times) - 1; i >= 0; i-- {
		if ent.times[i].Before(cutoff) {
			break
		}
		count++
	}
	return count
}

func (l *MemoryLedger) Reset(key domain.Key) { l.entries.delete(key).markRemoved() }

func (l *MemoryLedger) ResetAll() {
	for _, ent := range l.entries.clear() {
		ent.markRemoved()
	}
}

func (l *MemoryLedger) Keys() []domain.Key { return l.entries.keys() }

// Prune poda todas as chaves. Chamado pelo janitor para que agentes ociosos
// não segurem memória; as chaves continuam conhecidas.
func (l *MemoryLedger) Prune() {
	now := l.clock.now()
	l.entries.each(func(_ domain.Key, ent *ledgerEntry) {
		ent.mu.Lock()
		ent.prune(now)
		ent.mu.Unlock()
	})
}

func (e *ledgerEntry) markRemoved() {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.removed = true
	e.times = nil
	e.mu.Unlock()
}

// prune remove entradas mais antigas que o horizonte. Chamar com mu travado.
func (e *ledgerEntry) prune(now time.Time) {
	cutoff := now.Add(-domain.LedgerHorizon)
	i := 0
	for i < len(e.times) && e.times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	if i == len(e.times) {
		e.times = e.times[:0]
		return
	}
	e.times = append(e.times[:0], e.times[i:]...)
}

var _ domain.Ledger = (*MemoryLedger)(nil)
