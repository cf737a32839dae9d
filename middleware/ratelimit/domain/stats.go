package domain

import (
	"context"
	"time"
)

// Outcome é o resultado de uma decisão de admissão, para estatística.
type Outcome string

const (
	OutcomeAdmitted  Outcome = "admitted"
	OutcomeDenied    Outcome = "denied"
	OutcomeThrottled Outcome = "throttled"
	OutcomeTimeout   Outcome = "timeout"
)

// StatsEvent representa um evento de decisão do gate.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis).
type StatsEvent struct {
	Key     Key
	Outcome Outcome

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// O middleware deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
