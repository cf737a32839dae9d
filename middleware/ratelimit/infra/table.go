package infra

import (
	"sort"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// table é um mapa chave -> entrada com criação preguiçosa.
//
// O lock do mapa só é tomado em escrita na primeira inserção de uma chave;
// cada entrada carrega o próprio mutex, então operações em chaves diferentes
// não disputam o mesmo lock.
type table[T any] struct {
	mu      sync.RWMutex
	entries map[domain.Key]*T
	newFn   func() *T
}

func newTable[T any](newFn func() *T) *table[T] {
	return &table[T]{
		entries: make(map[domain.Key]*T),
		newFn:   newFn,
	}
}

func (t *table[T]) get(key domain.Key) *T {
	t.mu.RLock()
	ent, ok := t.entries[key]
	t.mu.RUnlock()
	if ok {
		return ent
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if ent, ok := t.entries[key]; ok {
		return ent
	}
	ent = t.newFn()
	t.entries[key] = ent
	return ent
}

// lookup não cria a entrada.
func (t *table[T]) lookup(key domain.Key) (*T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ent, ok := t.entries[key]
	return ent, ok
}

// delete remove a chave e devolve a entrada removida (nil se não existia).
// Quem ainda segura o ponteiro precisa ser avisado pelo chamador.
func (t *table[T]) delete(key domain.Key) *T {
	t.mu.Lock()
	defer t.mu.Unlock()
	ent := t.entries[key]
	delete(t.entries, key)
	return ent
}

// clear esvazia a tabela e devolve as entradas removidas.
func (t *table[T]) clear() []*T {
	t.mu.Lock()
	old := t.entries
	t.entries = make(map[domain.Key]*T)
	t.mu.Unlock()

	out := make([]*T, 0, len(old))
	for _, ent := range old {
		out = append(out, ent)
	}
	return out
}

// keys devolve as chaves conhecidas em ordem estável.
func (t *table[T]) keys() []domain.Key {
	t.mu.RLock()
	out := make([]domain.Key, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// each itera sobre uma cópia das entradas, sem segurar o lock do mapa
// enquanto fn roda.
func (t *table[T]) each(fn func(domain.Key, *T)) {
	t.mu.RLock()
	snapshot := make(map[domain.Key]*T, len(t.entries))
	for k, v := range t.entries {
		snapshot[k] = v
	}
	t.mu.RUnlock()

	for k, v := range snapshot {
		fn(k, v)
	}
}

// Clock é a fonte de tempo das implementações em memória.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
