package ratelimit

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/url"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
}

func agentRequest(agent, path string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "http://example"+path, nil)
	r.Header.Set(DefaultAgentHeader, agent)
	return r
}

func TestMiddleware_AllowsThenRejectsSameAgent(t *testing.T) {
	gate, _ := newTestGate(t, 1, 600)
	stats := infra.NewMemoryStatsStore()

	calls := 0
	h := Middleware(Options{
		Gate:                gate,
		Stats:               stats,
		AddRateLimitHeaders: true,
	})(okHandler(&calls))

	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, agentRequest("bot-1", "/ticker"))
	require.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, "bot-1", w1.Header().Get(HeaderAgent))
	assert.Equal(t, "0", w1.Header().Get(HeaderRemainingSecond))
	assert.Equal(t, "599", w1.Header().Get(HeaderRemainingMinute))

	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, agentRequest("bot-1", "/ticker"))
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
	assert.Equal(t, "5", w2.Header().Get("Retry-After"))

	w3 := httptest.NewRecorder()
	h.ServeHTTP(w3, agentRequest("bot-1", "/ticker"))
	assert.Equal(t, http.StatusTooManyRequests, w3.Code)

	assert.Equal(t, 1, calls)
	assert.Equal(t, infra.Counters{Admitted: 1, Denied: 1, Throttled: 1}, stats.Total())
}

func TestMiddleware_AgentsAreIsolated(t *testing.T) {
	gate, _ := newTestGate(t, 1, 600)

	calls := 0
	h := Middleware(Options{Gate: gate})(okHandler(&calls))

	for _, agent := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, agentRequest(agent, "/"))
		assert.Equal(t, http.StatusOK, w.Code, "agent %s", agent)
	}
	assert.Equal(t, 3, calls)
}

func TestMiddleware_CooldownClearsAfterPenalty(t *testing.T) {
	gate, clk := newTestGate(t, 1, 600)

	calls := 0
	h := Middleware(Options{Gate: gate})(okHandler(&calls))

	h.ServeHTTP(httptest.NewRecorder(), agentRequest("bot-1", "/"))
	h.ServeHTTP(httptest.NewRecorder(), agentRequest("bot-1", "/"))

	clk.Advance(2 * time.Second)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, agentRequest("bot-1", "/"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "second window cleared but penalty holds")

	clk.Advance(3 * time.Second)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, agentRequest("bot-1", "/"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, calls)
}

func TestMiddleware_WaitModeTimesOut(t *testing.T) {
	gate, _ := newTestGate(t, 1, 600)
	require.NoError(t, gate.ApplyDirective(domain.AgentKey("bot-1"), 10*time.Second))
	stats := infra.NewMemoryStatsStore()

	calls := 0
	h := Middleware(Options{
		Gate:        gate,
		Stats:       stats,
		Mode:        ModeWait,
		WaitTimeout: 30 * time.Millisecond,
	})(okHandler(&calls))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, agentRequest("bot-1", "/"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "10", w.Header().Get("Retry-After"))
	assert.Zero(t, calls)
	assert.Equal(t, int64(1), stats.Total().Timeout)
}

func TestMiddleware_WaitModeAdmitsWhenCapacityFrees(t *testing.T) {
	gate, clk := newTestGate(t, 1, 600)
	gate.Record(domain.AgentKey("bot-1"))

	calls := 0
	h := Middleware(Options{
		Gate:        gate,
		Mode:        ModeWait,
		WaitTimeout: 2 * time.Second,
	})(okHandler(&calls))

	go func() {
		time.Sleep(20 * time.Millisecond)
		clk.Advance(1100 * time.Millisecond)
	}()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, agentRequest("bot-1", "/"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
}

func TestMiddleware_WaitModeClientGone(t *testing.T) {
	gate, _ := newTestGate(t, 1, 600)
	require.NoError(t, gate.ApplyDirective(domain.AgentKey("bot-1"), 10*time.Second))
	stats := infra.NewMemoryStatsStore()

	calls := 0
	h := Middleware(Options{Gate: gate, Stats: stats, Mode: ModeWait, WaitTimeout: time.Second})(okHandler(&calls))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := agentRequest("bot-1", "/").WithContext(ctx)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Zero(t, calls)
	assert.Equal(t, infra.Counters{}, stats.Total())
}

func TestMiddleware_NilGatePassesThrough(t *testing.T) {
	calls := 0
	h := Middleware(Options{})(okHandler(&calls))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, agentRequest("bot-1", "/"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
}

func TestMiddleware_ProxyFeedbackThrottlesAdmittedBucket(t *testing.T) {
	var (
		upstreamPath string
		hits         int
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		upstreamPath = r.URL.Path
		w.Header().Set(HeaderLimitSecond, "4")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	target, err := url.Parse(upstream.URL + "/api")
	require.NoError(t, err)

	gate, _ := newTestGate(t, 10, 600)
	keyFn := DefaultKeyFunc(KeyOptions{EndpointFromPath: true})

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ModifyResponse = Feedback{Gate: gate}.ModifyResponse(keyFn)

	h := Middleware(Options{Gate: gate, KeyFn: keyFn})(proxy)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, agentRequest("bot-1", "/orders"))

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "/api/orders", upstreamPath)

	admitted := domain.NewKey("bot-1", "orders")
	assert.True(t, gate.IsThrottled(admitted))
	assert.Equal(t, uint(4), gate.Limits(admitted).MaxPerSecond)
	assert.False(t, gate.IsThrottled(domain.NewKey("bot-1", "api")))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, agentRequest("bot-1", "/orders"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 1, hits, "throttled bucket is not forwarded again")
}
