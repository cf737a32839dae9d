package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
)

// ErrRejected é devolvido pelo Transport em modo fail-fast quando o agente está sem folga.
var ErrRejected = errors.New("request rejected by admission control")

// Transport é o wrapper HTTP usado pelos agentes que falam direto com o upstream.
//
// Antes do dispatch pergunta ao Gate (ou espera, se Wait > 0); depois do
// dispatch registra o envio, com sucesso ou falha, e repassa os headers do
// upstream ao Gate.
type Transport struct {
	Base http.RoundTripper
	Gate *application.Gate
	// KeyFn extrai a chave da requisição. Padrão: header X-Agent-ID.
	KeyFn KeyFunc
	// Wait é o timeout de AwaitCapacity. Zero => fail-fast com ErrRejected.
	Wait time.Duration
	Log  *slog.Logger
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Gate == nil {
		return base.RoundTrip(req)
	}

	keyFn := t.KeyFn
	if keyFn == nil {
		keyFn = DefaultKeyFunc(KeyOptions{})
	}
	key := keyFn(req)

	if t.Wait > 0 {
		if err := t.Gate.AwaitCapacity(req.Context(), key, t.Wait); err != nil {
			return nil, err
		}
	} else if t.Gate.EvaluateAndThrottle(key) {
		return nil, fmt.Errorf("%w: key=%s retry_after=%s", ErrRejected, key, t.Gate.RetryHint(key))
	}

	resp, err := base.RoundTrip(req)
	t.Gate.Record(key)
	if err != nil {
		return nil, err
	}

	Feedback{Gate: t.Gate, Log: t.Log}.Observe(key, resp)
	return resp, nil
}

// StaticKey devolve um KeyFunc fixo, para clientes de um único agente.
func StaticKey(key domain.Key) KeyFunc {
	return func(*http.Request) domain.Key { return key }
}

// NewAgentClient monta um http.Client que passa pelo controle de admissão do agente.
func NewAgentClient(gate *application.Gate, agent string, wait time.Duration) *http.Client {
	return &http.Client{
		Transport: &Transport{
			Gate:  gate,
			KeyFn: StaticKey(domain.AgentKey(agent)),
			Wait:  wait,
		},
	}
}
