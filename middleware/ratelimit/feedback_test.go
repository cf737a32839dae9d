package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLimitHeaders(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	h := http.Header{}
	h.Set(HeaderLimitSecond, "20")
	h.Set(HeaderLimitMinute, "junk")

	u, ok := ParseLimitHeaders(h, now)
	require.True(t, ok)
	require.NotNil(t, u.PerSecond)
	assert.Equal(t, uint(20), *u.PerSecond)
	assert.Nil(t, u.PerMinute, "invalid values are ignored")
	require.NotNil(t, u.ObservedAt)
	assert.Equal(t, now, *u.ObservedAt)

	_, ok = ParseLimitHeaders(http.Header{}, now)
	assert.False(t, ok)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
		ok    bool
	}{
		{name: "seconds", value: "7", want: 7 * time.Second, ok: true},
		{name: "http date", value: now.Add(3 * time.Second).Format(http.TimeFormat), want: 3 * time.Second, ok: true},
		{name: "past date", value: now.Add(-time.Minute).Format(http.TimeFormat), ok: true},
		{name: "zero", value: "0", ok: true},
		{name: "negative", value: "-3", ok: true},
		{name: "empty", value: ""},
		{name: "garbage", value: "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.value, now)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeedback_ObserveUpdatesLimitsAndCooldown(t *testing.T) {
	gate, clk := newTestGate(t, 10, 600)
	key := domain.AgentKey("bot-1")
	fb := Feedback{Gate: gate, Now: clk.Now}

	resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}
	resp.Header.Set(HeaderLimitSecond, "2")
	fb.Observe(key, resp)
	assert.Equal(t, uint(2), gate.Limits(key).MaxPerSecond)
	assert.Equal(t, uint(600), gate.Limits(key).MaxPerMinute)
	assert.False(t, gate.IsThrottled(key))

	tooMany := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	tooMany.Header.Set("Retry-After", "30")
	fb.Observe(key, tooMany)
	assert.True(t, gate.IsThrottled(key))
	assert.Equal(t, 30*time.Second, gate.RetryHint(key))
}

func TestFeedback_429WithoutRetryAfterUsesPenalty(t *testing.T) {
	gate, clk := newTestGate(t, 10, 600)
	key := domain.AgentKey("bot-1")

	Feedback{Gate: gate, Now: clk.Now}.Observe(key, &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}})
	assert.Equal(t, domain.ReactivePenalty, gate.RetryHint(key))
}

func TestFeedback_429WithImmediateRetrySetsNoCooldown(t *testing.T) {
	gate, clk := newTestGate(t, 10, 600)
	key := domain.AgentKey("bot-1")
	fb := Feedback{Gate: gate, Now: clk.Now}

	for _, v := range []string{"0", clk.Now().Add(-time.Minute).Format(http.TimeFormat)} {
		resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
		resp.Header.Set("Retry-After", v)
		fb.Observe(key, resp)
		assert.False(t, gate.IsThrottled(key), "Retry-After %q", v)
	}
}

func TestFeedback_ModifyResponsePrefersAdmittedKey(t *testing.T) {
	gate, clk := newTestGate(t, 10, 600)
	admitted := domain.NewKey("bot-1", "orders")
	keyFn := DefaultKeyFunc(KeyOptions{EndpointFromPath: true})

	out, err := http.NewRequestWithContext(WithKey(context.Background(), admitted), http.MethodPost, "http://upstream/api/orders", nil)
	require.NoError(t, err)
	out.Header.Set(DefaultAgentHeader, "bot-1")

	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}, Request: out}
	require.NoError(t, Feedback{Gate: gate, Now: clk.Now}.ModifyResponse(keyFn)(resp))

	assert.True(t, gate.IsThrottled(admitted))
	assert.False(t, gate.IsThrottled(domain.NewKey("bot-1", "api")))
}

func TestFeedback_ModifyResponseFallsBackToKeyFunc(t *testing.T) {
	gate, clk := newTestGate(t, 10, 600)

	out, err := http.NewRequest(http.MethodGet, "http://upstream/ticker", nil)
	require.NoError(t, err)
	out.Header.Set(DefaultAgentHeader, "bot-2")

	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}, Request: out}
	require.NoError(t, Feedback{Gate: gate, Now: clk.Now}.ModifyResponse(DefaultKeyFunc(KeyOptions{}))(resp))

	assert.True(t, gate.IsThrottled(domain.AgentKey("bot-2")))
}
