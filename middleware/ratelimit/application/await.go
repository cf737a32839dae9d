package application

import (
	"context"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// AwaitCapacity suspende quem chama até MaySend(key) ser verdadeiro, fazendo
// polling a cada pollInterval, ou falha com *domain.CapacityTimeoutError quando
// o tempo decorrido desde a chamada passa de timeout.
//
//   - timeout < 0 é rejeitado na hora com domain.ErrInvalidArgument.
//   - timeout == 0 faz uma única verificação.
//   - cancelamento do ctx devolve ctx.Err().
//
// Nenhum lock é segurado enquanto espera, e esperar não registra envio nem
// aplica cooldown: abandonar a espera não deixa estado para trás.
func (g *Gate) AwaitCapacity(ctx context.Context, key domain.Key, timeout time.Duration) error {
	if timeout < 0 {
		return domain.InvalidArgument("timeout must not be negative, got %s", timeout)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	if g.MaySend(key) {
		return nil
	}
	if timeout == 0 {
		return &domain.CapacityTimeoutError{Key: key, Timeout: timeout}
	}

	waitCtx, cancel := context.WithDeadline(ctx, start.Add(timeout))
	defer cancel()

	t := time.NewTicker(g.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-waitCtx.Done():
			// cancelamento de quem chama tem precedência sobre o nosso prazo.
			if err := ctx.Err(); err != nil {
				return err
			}
			waited := time.Since(start)
			g.log.Debug("capacity wait timed out", "key", key, "timeout", timeout, "waited", waited)
			return &domain.CapacityTimeoutError{Key: key, Timeout: timeout, Waited: waited}
		case <-t.C:
			if g.MaySend(key) {
				return nil
			}
		}
	}
}
