package ratelimit

import (
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/infra"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGate(t *testing.T, perSecond, perMinute uint) (*application.Gate, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	gate := application.NewGate(
		infra.NewMemoryLedger(infra.WithLedgerClock(clk.Now)),
		infra.NewMemoryRegistry(perSecond, perMinute, infra.WithRegistryClock(clk.Now)),
		infra.NewMemoryTracker(infra.WithTrackerClock(clk.Now)),
		application.WithClock(clk.Now),
		application.WithPollInterval(5*time.Millisecond),
	)
	return gate, clk
}
