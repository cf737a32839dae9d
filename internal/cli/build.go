package cli

import (
	"log/slog"

	"admission-gateway/internal/config"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"
)

// buildGate monta o gate em memória e aplica as cotas por agente da configuração.
func buildGate(cfg config.LimitsConfig, log *slog.Logger) (*application.Gate, *infra.MemoryLedger) {
	ledger := infra.NewMemoryLedger()
	gate := application.NewGate(
		ledger,
		infra.NewMemoryRegistry(cfg.PerSecond, cfg.PerMinute),
		infra.NewMemoryTracker(),
		application.WithPenalty(cfg.Penalty),
		application.WithPollInterval(cfg.PollInterval),
		application.WithLogger(log),
	)

	for agent, o := range cfg.Overrides {
		var u domain.LimitUpdate
		if o.PerSecond > 0 {
			perSecond := o.PerSecond
			u.PerSecond = &perSecond
		}
		if o.PerMinute > 0 {
			perMinute := o.PerMinute
			u.PerMinute = &perMinute
		}
		gate.UpdateLimits(domain.AgentKey(agent), u)
	}
	return gate, ledger
}
