package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// Monitor expõe o estado do gate para painéis e operação.
// Rotas de leitura nunca mudam estado; as de escrita são reset e limites.
type Monitor struct {
	Gate  *application.Gate
	Stats *infra.MemoryStatsStore
	Log   *slog.Logger
}

// StatusResponse é o corpo de GET /v1/status.
type StatusResponse struct {
	AnyCoolingDown bool                 `json:"any_cooling_down"`
	Agents         []domain.AgentStatus `json:"agents"`
	GeneratedAt    time.Time            `json:"generated_at"`
}

// CapacityResponse é o corpo de GET /v1/agents/{agent}/capacity.
type CapacityResponse struct {
	Key       domain.Key          `json:"key"`
	Throttled bool                `json:"throttled"`
	MaySend   bool                `json:"may_send"`
	Limits    domain.LimitProfile `json:"limits"`
	Remaining domain.Capacity     `json:"remaining"`
}

// LimitsRequest é o corpo de PUT /v1/agents/{agent}/limits. Campos ausentes não mudam.
type LimitsRequest struct {
	Endpoint  string `json:"endpoint,omitempty"`
	PerSecond *uint  `json:"per_second,omitempty"`
	PerMinute *uint  `json:"per_minute,omitempty"`
}

// StatsResponse é o corpo de GET /v1/stats.
type StatsResponse struct {
	Total   infra.Counters            `json:"total"`
	ByAgent map[string]infra.Counters `json:"by_agent"`
	ByRoute map[string]infra.Counters `json:"by_route,omitempty"`
}

func NewMonitorRouter(m Monitor) http.Handler {
	if m.Log == nil {
		m.Log = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", m.status)
		r.Get("/throttled", m.throttled)
		r.Get("/stats", m.stats)
		r.Post("/reset", m.resetAll)

		r.Route("/agents/{agent}", func(r chi.Router) {
			r.Get("/capacity", m.capacity)
			r.Post("/reset", m.reset)
			r.Put("/limits", m.updateLimits)
		})
	})
	return r
}

func (m Monitor) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		AnyCoolingDown: m.Gate.AnyAgentCoolingDown(),
		Agents:         m.Gate.Snapshot(),
		GeneratedAt:    time.Now().UTC(),
	})
}

func (m Monitor) throttled(w http.ResponseWriter, _ *http.Request) {
	keys := []domain.Key{}
	for _, st := range m.Gate.Snapshot() {
		if m.Gate.IsThrottled(st.Key) {
			keys = append(keys, st.Key)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"any_cooling_down": len(keys) > 0,
		"keys":             keys,
	})
}

func (m Monitor) capacity(w http.ResponseWriter, r *http.Request) {
	key := keyFromRoute(r)
	writeJSON(w, http.StatusOK, CapacityResponse{
		Key:       key,
		Throttled: m.Gate.IsThrottled(key),
		MaySend:   m.Gate.MaySend(key),
		Limits:    m.Gate.Limits(key),
		Remaining: m.Gate.RemainingCapacity(key),
	})
}

func (m Monitor) reset(w http.ResponseWriter, r *http.Request) {
	key := keyFromRoute(r)
	m.Gate.Reset(key)
	m.Log.Info("key reset via monitor", "key", key, "request_id", requestIDFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"reset": key})
}

func (m Monitor) resetAll(w http.ResponseWriter, r *http.Request) {
	m.Gate.ResetAll()
	m.Log.Info("all keys reset via monitor", "request_id", requestIDFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"reset": "all"})
}

func (m Monitor) updateLimits(w http.ResponseWriter, r *http.Request) {
	var req LimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.InvalidArgument("decode body: %v", err))
		return
	}
	if req.PerSecond == nil && req.PerMinute == nil {
		writeError(w, http.StatusBadRequest, domain.InvalidArgument("per_second or per_minute is required"))
		return
	}

	key := domain.NewKey(chi.URLParam(r, "agent"), req.Endpoint)
	m.Gate.UpdateLimits(key, domain.LimitUpdate{PerSecond: req.PerSecond, PerMinute: req.PerMinute})
	writeJSON(w, http.StatusOK, m.Gate.Limits(key))
}

func (m Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	if m.Stats == nil {
		writeError(w, http.StatusNotFound, errors.New("stats disabled"))
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Total:   m.Stats.Total(),
		ByAgent: m.Stats.ByAgent(),
		ByRoute: m.Stats.ByRoute(),
	})
}

// keyFromRoute usa {agent} e o query param opcional ?endpoint=.
func keyFromRoute(r *http.Request) domain.Key {
	return domain.NewKey(chi.URLParam(r, "agent"), r.URL.Query().Get("endpoint"))
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
