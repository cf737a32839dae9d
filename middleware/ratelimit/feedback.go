package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
)

// Headers trocados com agentes e upstream.
const (
	HeaderLimitSecond     = "X-RateLimit-Limit-Second"
	HeaderLimitMinute     = "X-RateLimit-Limit-Minute"
	HeaderRemainingSecond = "X-RateLimit-Remaining-Second"
	HeaderRemainingMinute = "X-RateLimit-Remaining-Minute"
	HeaderAgent           = "X-RateLimit-Agent"
)

// ParseLimitHeaders lê os limites anunciados pelo upstream.
// Valores ausentes ou inválidos ficam nil (atualização parcial).
func ParseLimitHeaders(h http.Header, observedAt time.Time) (domain.LimitUpdate, bool) {
	u := domain.LimitUpdate{
		PerSecond: parseUintHeader(h, HeaderLimitSecond),
		PerMinute: parseUintHeader(h, HeaderLimitMinute),
	}
	if u.Empty() {
		return u, false
	}
	if !observedAt.IsZero() {
		u.ObservedAt = &observedAt
	}
	return u, true
}

func parseUintHeader(h http.Header, name string) *uint {
	v := strings.TrimSpace(h.Get(name))
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 0)
	if err != nil {
		return nil
	}
	out := uint(n)
	return &out
}

// ParseRetryAfter aceita segundos ou data HTTP. ok indica que o header
// existe e é válido; zero ou data no passado devolvem (0, true).
func ParseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, true
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	return max(at.Sub(now), 0), true
}

// Feedback leva o que o upstream respondeu de volta ao Gate:
// limites anunciados viram UpdateLimits e 429 vira cooldown proativo.
type Feedback struct {
	Gate *application.Gate
	Log  *slog.Logger
	Now  func() time.Time
}

func (f Feedback) Observe(key domain.Key, resp *http.Response) {
	if f.Gate == nil || resp == nil {
		return
	}
	now := time.Now()
	if f.Now != nil {
		now = f.Now()
	}

	if u, ok := ParseLimitHeaders(resp.Header, now); ok {
		f.Gate.UpdateLimits(key, u)
	}

	if resp.StatusCode != http.StatusTooManyRequests {
		return
	}

	cooldown, ok := ParseRetryAfter(resp.Header.Get("Retry-After"), now)
	if !ok {
		cooldown = domain.ReactivePenalty
	}
	if cooldown <= 0 {
		// upstream mandou tentar de novo já: nenhum cooldown.
		if f.Log != nil {
			f.Log.Debug("upstream returned 429 with immediate retry", "key", key)
		}
		return
	}
	if err := f.Gate.ApplyDirective(key, cooldown); err != nil && f.Log != nil {
		f.Log.Error("failed to apply upstream cooldown", "key", key, "error", err)
	}
	if f.Log != nil {
		f.Log.Warn("upstream returned 429", "key", key, "cooldown", cooldown)
	}
}

// ModifyResponse serve como httputil.ReverseProxy.ModifyResponse.
//
// A chave vem do contexto gravado pelo Middleware: o proxy já reescreveu o
// path da requisição de saída, então recalcular com keyFn pode cair em outro
// bucket. keyFn só é usado quando a requisição não passou pelo Middleware.
func (f Feedback) ModifyResponse(keyFn KeyFunc) func(*http.Response) error {
	return func(resp *http.Response) error {
		if resp.Request == nil {
			return nil
		}
		key, ok := KeyFromContext(resp.Request.Context())
		if !ok {
			key = keyFn(resp.Request)
		}
		f.Observe(key, resp)
		return nil
	}
}
