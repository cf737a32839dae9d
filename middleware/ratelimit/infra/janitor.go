package infra

import (
	"log/slog"
	"time"
)

// Pruner é qualquer coisa que saiba se podar (ex.: MemoryLedger).
type Pruner interface {
	Prune()
}

// StartJanitor inicia uma goroutine que poda os ledgers periodicamente.
// Agentes ociosos não voltam a consultar o ledger, então sem isso os
// timestamps antigos ficariam em memória até o próximo acesso.
// Pare cancelando o contexto.
func StartJanitor(ctx DoneContext, p Pruner, every time.Duration, log *slog.Logger) {
	if every <= 0 || p == nil {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				if log != nil {
					log.Debug("janitor stopped")
				}
				return
			case <-t.C:
				p.Prune()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
