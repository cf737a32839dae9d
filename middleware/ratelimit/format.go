// utilitário pequeno para formatação rápida/consistente de valores numéricos em headers.
//    Evita puxar fmt (que é mais "pesado" e genérico) só para formatação simples.

package ratelimit

import (
	"math"
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatUint(v uint) string { return strconv.FormatUint(uint64(v), 10) }

// retryAfterSeconds arredonda para cima: voltar antes do fim do cooldown
// só gera outro 429.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}
