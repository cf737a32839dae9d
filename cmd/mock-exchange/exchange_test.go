package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"admission-gateway/middleware/ratelimit"
)

func TestExchange_EnforcesQuotaPerAgent(t *testing.T) {
	ex := newExchange(0.001, 2, 120, 3*time.Second, slog.New(slog.DiscardHandler))
	h := ex.routes()

	call := func(agent string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/ticker/btc", nil)
		r.Header.Set(ratelimit.DefaultAgentHeader, agent)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, call("a").Code)
	assert.Equal(t, http.StatusOK, call("a").Code)

	w := call("a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3", w.Header().Get("Retry-After"))
	assert.Equal(t, "120", w.Header().Get(ratelimit.HeaderLimitMinute))

	assert.Equal(t, http.StatusOK, call("b").Code, "quota is per agent")
}

func TestExchange_EnforcesMinuteQuota(t *testing.T) {
	ex := newExchange(1000, 100, 3, time.Second, slog.New(slog.DiscardHandler))
	h := ex.routes()

	call := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/ticker/eth", nil)
		r.Header.Set(ratelimit.DefaultAgentHeader, "a")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, call().Code, "request %d", i)
	}
	w := call()
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "per-second quota still has room")
	assert.Equal(t, "3", w.Header().Get(ratelimit.HeaderLimitMinute))
}

func TestExchange_NoMinuteQuotaWhenDisabled(t *testing.T) {
	ex := newExchange(1000, 100, 0, time.Second, slog.New(slog.DiscardHandler))
	h := ex.routes()

	for i := 0; i < 10; i++ {
		r := httptest.NewRequest(http.MethodGet, "/ticker/eth", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get(ratelimit.HeaderLimitMinute))
	}
}
