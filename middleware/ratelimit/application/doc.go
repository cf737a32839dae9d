// Package application contém os casos de uso do controle de admissão.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Gate.Decide(key) retorna uma Decision (allow/deny + retry-after) e
// Gate.AwaitCapacity(ctx, key, timeout) bloqueia até haver folga.
package application
