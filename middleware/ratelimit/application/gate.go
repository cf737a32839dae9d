package application

import (
	"log/slog"
	"sort"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// Gate é a superfície de decisão de admissão.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas consulta ledger,
// registro de limites e cooldown. O estado é particionado por domain.Key; a
// decisão de uma chave nunca olha o ledger de outra.
type Gate struct {
	ledger   domain.Ledger
	limits   domain.LimitRegistry
	throttle domain.ThrottleTracker

	clock        func() time.Time
	penalty      time.Duration
	pollInterval time.Duration
	log          *slog.Logger
}

type Option func(*Gate)

// WithClock deve usar o mesmo relógio das implementações de infra.
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) { g.clock = clock }
}

func WithPenalty(d time.Duration) Option {
	return func(g *Gate) { g.penalty = d }
}

func WithPollInterval(d time.Duration) Option {
	return func(g *Gate) { g.pollInterval = d }
}

func WithLogger(log *slog.Logger) Option {
	return func(g *Gate) { g.log = log }
}

func NewGate(ledger domain.Ledger, limits domain.LimitRegistry, throttle domain.ThrottleTracker, opts ...Option) *Gate {
	g := &Gate{
		ledger:       ledger,
		limits:       limits,
		throttle:     throttle,
		clock:        time.Now,
		penalty:      domain.ReactivePenalty,
		pollInterval: domain.DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.penalty <= 0 {
		g.penalty = domain.ReactivePenalty
	}
	if g.pollInterval <= 0 {
		g.pollInterval = domain.DefaultPollInterval
	}
	if g.log == nil {
		g.log = slog.New(slog.DiscardHandler)
	}
	return g
}

// MaySend é um predicado puro: não registra envio e não aplica cooldown.
func (g *Gate) MaySend(key domain.Key) bool {
	if g.throttle.IsThrottled(key) {
		return false
	}
	return g.withinLimits(key)
}

// EvaluateAndThrottle responde se a chave deve ser bloqueada agora.
//
// ATENÇÃO: é a única operação com efeito colateral de leitura-e-escrita.
// Se um limite contado foi atingido (e a chave ainda não estava em cooldown),
// aplica o cooldown reativo fixo antes de devolver true. Se já estava em
// cooldown, devolve true sem mexer no prazo.
func (g *Gate) EvaluateAndThrottle(key domain.Key) bool {
	if g.throttle.IsThrottled(key) {
		return true
	}
	if g.withinLimits(key) {
		return false
	}

	if err := g.throttle.SetCooldown(key, g.penalty); err != nil {
		g.log.Error("failed to set reactive cooldown", "key", key, "error", err)
		return true
	}
	g.log.Info("agent throttled", "key", key, "agent", key.Agent(), "cooldown", g.penalty)
	return true
}

// Decide é o EvaluateAndThrottle com a sugestão de Retry-After para quem bloqueia.
func (g *Gate) Decide(key domain.Key) domain.Decision {
	if !g.EvaluateAndThrottle(key) {
		return domain.Decision{Allowed: true}
	}

	retry := g.penalty
	if until, ok := g.throttle.CooldownUntil(key); ok {
		retry = until.Sub(g.clock())
	}
	if retry <= 0 {
		retry = time.Second
	}
	return domain.Decision{Allowed: false, RetryAfter: retry}
}

// RetryHint estima quanto esperar antes de tentar de novo, sem efeito colateral.
func (g *Gate) RetryHint(key domain.Key) time.Duration {
	if until, ok := g.throttle.CooldownUntil(key); ok {
		if d := until.Sub(g.clock()); d > 0 {
			return d
		}
	}
	return domain.SecondWindow
}

// RemainingCapacity devolve max(0, limite - contagem) em cada janela.
func (g *Gate) RemainingCapacity(key domain.Key) domain.Capacity {
	profile := g.limits.Get(key)
	sec := g.ledger.CountWithin(key, domain.SecondWindow)
	minute := g.ledger.CountWithin(key, domain.MinuteWindow)

	return domain.Capacity{
		RemainingPerSecond: headroom(profile.MaxPerSecond, sec),
		RemainingPerMinute: headroom(profile.MaxPerMinute, minute),
	}
}

// IsThrottled informa se a chave está em cooldown ativo (consulta pura).
func (g *Gate) IsThrottled(key domain.Key) bool {
	return g.throttle.IsThrottled(key)
}

// AnyAgentThrottled roda EvaluateAndThrottle para todas as chaves conhecidas.
//
// ATENÇÃO: não é uma consulta pura. Chaves que estouraram um limite entram em
// cooldown como efeito desta varredura. Painéis devem usar AnyAgentCoolingDown.
func (g *Gate) AnyAgentThrottled() bool {
	found := false
	for _, key := range g.knownKeys() {
		if g.EvaluateAndThrottle(key) {
			found = true
		}
	}
	return found
}

// AnyAgentCoolingDown é a variante somente-leitura: só olha cooldowns ativos.
func (g *Gate) AnyAgentCoolingDown() bool {
	for _, key := range g.throttle.Keys() {
		if g.throttle.IsThrottled(key) {
			return true
		}
	}
	return false
}

// Record registra um envio. Chamar depois do dispatch, com sucesso ou falha:
// o upstream já recebeu a requisição.
func (g *Gate) Record(key domain.Key) {
	g.ledger.Record(key)
}

// UpdateLimits repassa limites descobertos (ex.: headers do upstream) ao registro.
func (g *Gate) UpdateLimits(key domain.Key, u domain.LimitUpdate) {
	if u.Empty() {
		return
	}
	g.limits.Update(key, u)
	profile := g.limits.Get(key)
	g.log.Debug("limits updated", "key", key, "per_second", profile.MaxPerSecond, "per_minute", profile.MaxPerMinute)
}

// Limits devolve o perfil atual da chave.
func (g *Gate) Limits(key domain.Key) domain.LimitProfile {
	return g.limits.Get(key)
}

// ApplyDirective aplica um cooldown proativo (ex.: Retry-After de um 429).
// Só estende: um cooldown ativo mais longo é preservado.
func (g *Gate) ApplyDirective(key domain.Key, d time.Duration) error {
	if d <= 0 {
		return domain.InvalidArgument("directive cooldown must be positive, got %s", d)
	}

	if until, ok := g.throttle.CooldownUntil(key); ok && !g.clock().Add(d).After(until) {
		return nil
	}
	if err := g.throttle.SetCooldown(key, d); err != nil {
		return err
	}
	g.log.Info("upstream cooldown applied", "key", key, "cooldown", d)
	return nil
}

// Reset apaga todo o estado da chave (reset administrativo).
func (g *Gate) Reset(key domain.Key) {
	g.ledger.Reset(key)
	g.limits.Reset(key)
	g.throttle.Clear(key)
	g.log.Info("key reset", "key", key)
}

func (g *Gate) ResetAll() {
	g.ledger.ResetAll()
	g.limits.ResetAll()
	g.throttle.ClearAll()
	g.log.Info("all keys reset")
}

// Snapshot é a leitura somente-leitura de todas as chaves conhecidas, para o monitor.
func (g *Gate) Snapshot() []domain.AgentStatus {
	keys := g.knownKeys()
	out := make([]domain.AgentStatus, 0, len(keys))
	for _, key := range keys {
		profile := g.limits.Get(key)
		sec := g.ledger.CountWithin(key, domain.SecondWindow)
		minute := g.ledger.CountWithin(key, domain.MinuteWindow)

		st := domain.AgentStatus{
			Key:         key,
			Agent:       key.Agent(),
			Endpoint:    key.Endpoint(),
			Limits:      profile,
			SentLastSec: sec,
			SentLastMin: minute,
			Remaining: domain.Capacity{
				RemainingPerSecond: headroom(profile.MaxPerSecond, sec),
				RemainingPerMinute: headroom(profile.MaxPerMinute, minute),
			},
		}
		if until, ok := g.throttle.CooldownUntil(key); ok {
			st.CooldownUntil = &until
		}
		out = append(out, st)
	}
	return out
}

func (g *Gate) withinLimits(key domain.Key) bool {
	profile := g.limits.Get(key)
	if uint(g.ledger.CountWithin(key, domain.SecondWindow)) >= profile.MaxPerSecond {
		return false
	}
	return uint(g.ledger.CountWithin(key, domain.MinuteWindow)) < profile.MaxPerMinute
}

// knownKeys é a união das chaves vistas por ledger, registro e tracker.
func (g *Gate) knownKeys() []domain.Key {
	seen := make(map[domain.Key]struct{})
	for _, src := range [][]domain.Key{g.ledger.Keys(), g.limits.Keys(), g.throttle.Keys()} {
		for _, k := range src {
			seen[k] = struct{}{}
		}
	}
	out := make([]domain.Key, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func headroom(limit uint, used int) uint {
	if used < 0 {
		used = 0
	}
	if uint(used) >= limit {
		return 0
	}
	return limit - uint(used)
}
