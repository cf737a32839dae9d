package domain

// Camada de domínio do controle de admissão.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"strings"
	"time"
)

const (
	// LedgerHorizon é a maior janela que um perfil de limite pode referenciar.
	// O ledger nunca guarda timestamps mais antigos que isso no momento de uma decisão.
	LedgerHorizon = 60 * time.Second

	// SecondWindow e MinuteWindow são as duas janelas avaliadas pelo gate.
	SecondWindow = time.Second
	MinuteWindow = time.Minute

	// ReactivePenalty é o cooldown aplicado quando um limite contado é estourado.
	ReactivePenalty = 5 * time.Second

	// DefaultPollInterval é o intervalo de polling de AwaitCapacity.
	DefaultPollInterval = 100 * time.Millisecond
)

// Key identifica um bucket de rate limit: um agente e, opcionalmente, um endpoint.
type Key string

const keySep = "#"

// NewKey monta a chave do bucket. Endpoint vazio => bucket padrão do agente.
func NewKey(agent, endpoint string) Key {
	agent = strings.TrimSpace(agent)
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return Key(agent)
	}
	return Key(agent + keySep + endpoint)
}

// AgentKey é o atalho para o bucket padrão do agente.
func AgentKey(agent string) Key { return NewKey(agent, "") }

func (k Key) Agent() string {
	agent, _, _ := strings.Cut(string(k), keySep)
	return agent
}

func (k Key) Endpoint() string {
	_, endpoint, _ := strings.Cut(string(k), keySep)
	return endpoint
}

func (k Key) String() string { return string(k) }

// LimitProfile é o teto configurado/descoberto de um bucket.
//
// Só muda por atualização explícita (ex.: headers do upstream); o gate nunca altera.
type LimitProfile struct {
	MaxPerSecond uint      `json:"max_per_second"`
	MaxPerMinute uint      `json:"max_per_minute"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LimitUpdate é uma atualização parcial: campos nil ficam como estão.
type LimitUpdate struct {
	PerSecond  *uint
	PerMinute  *uint
	ObservedAt *time.Time
}

// Empty indica que a atualização não carrega nenhum limite.
func (u LimitUpdate) Empty() bool {
	return u.PerSecond == nil && u.PerMinute == nil
}

// Capacity é a folga restante (nunca negativa) em cada janela.
type Capacity struct {
	RemainingPerSecond uint `json:"remaining_per_second"`
	RemainingPerMinute uint `json:"remaining_per_minute"`
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// AgentStatus é a fotografia somente-leitura de um bucket, usada pelo monitor.
type AgentStatus struct {
	Key           Key          `json:"key"`
	Agent         string       `json:"agent"`
	Endpoint      string       `json:"endpoint,omitempty"`
	Limits        LimitProfile `json:"limits"`
	SentLastSec   int          `json:"sent_last_second"`
	SentLastMin   int          `json:"sent_last_minute"`
	Remaining     Capacity     `json:"remaining"`
	CooldownUntil *time.Time   `json:"cooldown_until,omitempty"`
}

// Ledger guarda os timestamps de envio recentes por chave.
type Ledger interface {
	Record(key Key)
	// CountWithin poda entradas mais antigas que LedgerHorizon e conta as
	// entradas com idade <= window.
	CountWithin(key Key, window time.Duration) int
	Reset(key Key)
	ResetAll()
	Keys() []Key
}

// LimitRegistry obtém/atualiza o perfil de limite por chave.
// A implementação materializa defaults no primeiro acesso.
type LimitRegistry interface {
	Get(key Key) LimitProfile
	Update(key Key, u LimitUpdate)
	Reset(key Key)
	ResetAll()
	Keys() []Key
}

// ThrottleTracker guarda o estado "em cooldown até T" por chave.
type ThrottleTracker interface {
	// IsThrottled é uma consulta pura: não altera estado.
	IsThrottled(key Key) bool
	// SetCooldown sobrescreve o cooldown atual (last writer wins).
	SetCooldown(key Key, d time.Duration) error
	CooldownUntil(key Key) (time.Time, bool)
	Clear(key Key)
	ClearAll()
	Keys() []Key
}
