package infra

import (
	"context"
	"sync"

	"admission-gateway/middleware/ratelimit/domain"
)

// Counters conta decisões por resultado.
type Counters struct {
	Admitted  int64 `json:"admitted"`
	Denied    int64 `json:"denied"`
	Throttled int64 `json:"throttled"`
	Timeout   int64 `json:"timeout"`
}

func (c *Counters) add(o domain.Outcome) {
	switch o {
	case domain.OutcomeAdmitted:
		c.Admitted++
	case domain.OutcomeDenied:
		c.Denied++
	case domain.OutcomeThrottled:
		c.Throttled++
	case domain.OutcomeTimeout:
		c.Timeout++
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes, desenvolvimento e para o endpoint /v1/stats do monitor.
//
// Não faz expiração.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byAgent map[string]Counters
	byRoute map[string]Counters

	trackRoutes bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackRoutes(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackRoutes = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byAgent: make(map[string]Counters),
		byRoute: make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	agent := ev.Key.Agent()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Outcome)

	c := s.byAgent[agent]
	c.add(ev.Outcome)
	s.byAgent[agent] = c

	if s.trackRoutes && (ev.Method != "" || ev.Path != "") {
		route := ev.Method + " " + ev.Path
		r := s.byRoute[route]
		r.add(ev.Outcome)
		s.byRoute[route] = r
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByAgent() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byAgent))
	for k, v := range s.byAgent {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

// MultiStats repassa o evento para vários stores. Erros não interrompem os demais;
// o primeiro é devolvido.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
