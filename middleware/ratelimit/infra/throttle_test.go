package infra

import (
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTracker_IsThrottledDoesNotCreateState(t *testing.T) {
	tr := NewMemoryTracker()
	key := domain.AgentKey("a")

	assert.False(t, tr.IsThrottled(key))
	assert.Empty(t, tr.Keys())
}

func TestMemoryTracker_CooldownExpires(t *testing.T) {
	clk := newFakeClock()
	tr := NewMemoryTracker(WithTrackerClock(clk.Now))
	key := domain.AgentKey("a")

	require.NoError(t, tr.SetCooldown(key, 5*time.Second))
	assert.True(t, tr.IsThrottled(key))

	until, ok := tr.CooldownUntil(key)
	require.True(t, ok)
	assert.Equal(t, clk.Now().Add(5*time.Second), until)

	clk.Advance(4999 * time.Millisecond)
	assert.True(t, tr.IsThrottled(key))

	clk.Advance(time.Millisecond)
	assert.False(t, tr.IsThrottled(key), "cooldown ends exactly at until")
	_, ok = tr.CooldownUntil(key)
	assert.False(t, ok)
}

func TestMemoryTracker_LastWriterWins(t *testing.T) {
	clk := newFakeClock()
	tr := NewMemoryTracker(WithTrackerClock(clk.Now))
	key := domain.AgentKey("a")

	require.NoError(t, tr.SetCooldown(key, 30*time.Second))
	require.NoError(t, tr.SetCooldown(key, time.Second))

	until, ok := tr.CooldownUntil(key)
	require.True(t, ok)
	assert.Equal(t, clk.Now().Add(time.Second), until)
}

func TestMemoryTracker_RejectsNonPositiveDuration(t *testing.T) {
	tr := NewMemoryTracker()
	key := domain.AgentKey("a")

	err := tr.SetCooldown(key, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	err = tr.SetCooldown(key, -time.Second)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.False(t, tr.IsThrottled(key))
}

func TestMemoryTracker_Clear(t *testing.T) {
	tr := NewMemoryTracker()
	a, b := domain.AgentKey("a"), domain.AgentKey("b")

	require.NoError(t, tr.SetCooldown(a, time.Minute))
	require.NoError(t, tr.SetCooldown(b, time.Minute))

	tr.Clear(a)
	assert.False(t, tr.IsThrottled(a))
	assert.True(t, tr.IsThrottled(b))

	tr.ClearAll()
	assert.False(t, tr.IsThrottled(b))
	assert.Empty(t, tr.Keys())
}

func TestMemoryTracker_SetCooldownAfterClearUsesFreshEntry(t *testing.T) {
	clk := newFakeClock()
	tr := NewMemoryTracker(WithTrackerClock(clk.Now))
	key := domain.AgentKey("a")

	require.NoError(t, tr.SetCooldown(key, time.Second))
	stale := tr.entries.get(key)
	tr.Clear(key)

	assert.False(t, stale.set(clk.Now().Add(time.Minute)), "removed entry rejects writes")
	assert.False(t, tr.IsThrottled(key))

	require.NoError(t, tr.SetCooldown(key, 2*time.Second))
	assert.True(t, tr.IsThrottled(key))
	clk.Advance(2 * time.Second)
	assert.False(t, tr.IsThrottled(key))
}

func TestMemoryTracker_ClearAllMarksEveryEntry(t *testing.T) {
	clk := newFakeClock()
	tr := NewMemoryTracker(WithTrackerClock(clk.Now))
	a, b := domain.AgentKey("a"), domain.AgentKey("b")

	require.NoError(t, tr.SetCooldown(a, time.Second))
	require.NoError(t, tr.SetCooldown(b, time.Second))
	staleA, staleB := tr.entries.get(a), tr.entries.get(b)
	tr.ClearAll()

	assert.False(t, staleA.set(clk.Now().Add(time.Second)))
	assert.False(t, staleB.set(clk.Now().Add(time.Second)))
	assert.Empty(t, tr.Keys())
}
