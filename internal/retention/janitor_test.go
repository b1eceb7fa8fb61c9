package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kre8/diagram-relay/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPurger struct {
	mu    sync.Mutex
	calls []int
	err   error
}

func (p *countingPurger) Purge(_ context.Context, days int) (model.PurgeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, days)
	return model.PurgeResult{}, p.err
}

func (p *countingPurger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func TestJanitor_SweepsRepeatedly(t *testing.T) {
	p := &countingPurger{}
	j := NewJanitor(p, 3, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, days := range p.calls {
		assert.Equal(t, 3, days)
	}
}

func TestJanitor_DefaultsRetention(t *testing.T) {
	p := &countingPurger{}
	j := NewJanitor(p, 0, time.Hour, nil)
	j.Sweep(context.Background())

	assert.Equal(t, []int{model.DefaultRetentionDays}, p.calls)
}

func TestJanitor_DisabledReturnsImmediately(t *testing.T) {
	p := &countingPurger{}
	j := NewJanitor(p, 7, 0, nil)

	done := make(chan struct{})
	go func() {
		j.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled janitor kept running")
	}
	assert.Zero(t, p.count())
}

func TestJanitor_KeepsRunningAfterFailure(t *testing.T) {
	p := &countingPurger{err: errors.New("database is locked")}
	j := NewJanitor(p, 7, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go j.Run(ctx)

	require.Eventually(t, func() bool { return p.count() >= 2 }, time.Second, 5*time.Millisecond)
}
