package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"admission-gateway/middleware/ratelimit"
)

type exchange struct {
	perSecond  rate.Limit
	burst      int
	perMinute  int
	retryAfter time.Duration
	log        *slog.Logger

	mu       sync.Mutex
	limiters map[string]*quota
}

// quota junta a cota por segundo e a por minuto de um agente.
// minute é nil quando perMinute <= 0 (sem limite por minuto).
type quota struct {
	second   *rate.Limiter
	minute   *rate.Limiter
	lastSeen time.Time
}

func (q *quota) allow() bool {
	if !q.second.Allow() {
		return false
	}
	return q.minute == nil || q.minute.Allow()
}

func newExchange(perSecond float64, burst, perMinute int, retryAfter time.Duration, log *slog.Logger) *exchange {
	if burst <= 0 {
		burst = 1
	}
	return &exchange{
		perSecond:  rate.Limit(perSecond),
		burst:      burst,
		perMinute:  perMinute,
		retryAfter: retryAfter,
		log:        log,
		limiters:   make(map[string]*quota),
	}
}

func (e *exchange) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(e.enforce)
	r.Get("/ticker/{symbol}", e.ticker)
	r.Post("/orders", e.order)
	r.Get("/*", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// enforce aplica a cota do agente e anuncia os limites em toda resposta.
func (e *exchange) enforce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent := strings.TrimSpace(r.Header.Get(ratelimit.DefaultAgentHeader))
		if agent == "" {
			agent = "anonymous"
		}

		w.Header().Set(ratelimit.HeaderLimitSecond, strconv.Itoa(max(1, int(e.perSecond))))
		if e.perMinute > 0 {
			w.Header().Set(ratelimit.HeaderLimitMinute, strconv.Itoa(e.perMinute))
		}

		if !e.quota(agent).allow() {
			e.log.Warn("quota exceeded", "agent", agent, "path", r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(int(e.retryAfter.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (e *exchange) quota(agent string) *quota {
	e.mu.Lock()
	defer e.mu.Unlock()

	q, ok := e.limiters[agent]
	if !ok {
		q = &quota{second: rate.NewLimiter(e.perSecond, e.burst)}
		if e.perMinute > 0 {
			q.minute = rate.NewLimiter(rate.Every(time.Minute/time.Duration(e.perMinute)), e.perMinute)
		}
		e.limiters[agent] = q
	}
	q.lastSeen = time.Now()
	return q
}

func (e *exchange) startJanitor(ctx context.Context, idle time.Duration) {
	t := time.NewTicker(idle)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				e.mu.Lock()
				for agent, q := range e.limiters {
					if now.Sub(q.lastSeen) > idle {
						delete(e.limiters, agent)
					}
				}
				e.mu.Unlock()
			}
		}
	}()
}

func (e *exchange) ticker(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": strings.ToUpper(chi.URLParam(r, "symbol")),
		"price":  "101.25",
		"at":     time.Now().UTC(),
	})
}

func (e *exchange) order(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "at": time.Now().UTC()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
