package infra

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingPruner struct{ n atomic.Int32 }

func (p *countingPruner) Prune() { p.n.Add(1) }

func TestStartJanitor_PrunesUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &countingPruner{}

	StartJanitor(ctx, p, 5*time.Millisecond, nil)

	assert.Eventually(t, func() bool { return p.n.Load() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	after := p.n.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, p.n.Load())
}

func TestStartJanitor_DisabledWithZeroInterval(t *testing.T) {
	p := &countingPruner{}
	StartJanitor(context.Background(), p, 0, nil)

	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, p.n.Load())
}
