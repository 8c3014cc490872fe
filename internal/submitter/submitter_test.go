package submitter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"arbengine"

	"github.com/stretchr/testify/assert"
)

type stubTransport struct {
	mu       sync.Mutex
	calls    int
	outcome  arbengine.BundleOutcome
	err      error
	onSubmit func()
}

func (t *stubTransport) Submit(ctx context.Context, b arbengine.Bundle) (arbengine.BundleOutcome, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if t.onSubmit != nil {
		t.onSubmit()
	}
	return t.outcome, t.err
}

func (t *stubTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func TestEnqueueSucceedsUnderCapacity(t *testing.T) {
	s := New(&stubTransport{}, &stubTransport{})
	err := s.Enqueue(arbengine.Bundle{Description: "a"})
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), s.Stats().TotalQueued)
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	s := New(&stubTransport{}, &stubTransport{})
	for i := 0; i < queueCapacity; i++ {
		assert.NoError(t, s.Enqueue(arbengine.Bundle{Description: "fill"}))
	}
	err := s.Enqueue(arbengine.Bundle{Description: "overflow"})
	assert.ErrorIs(t, err, arbengine.ErrQueueFull)
	assert.Equal(t, uint64(1), s.Stats().QueueFullDrops)
}

func TestRunSubmitsViaPrimaryOnSuccess(t *testing.T) {
	primary := &stubTransport{outcome: arbengine.BundleLanded}
	fallback := &stubTransport{outcome: arbengine.BundleLanded}
	s := New(primary, fallback)

	ctx, cancel := context.WithCancel(context.Background())
	shutdown := make(chan struct{})
	go s.Run(ctx, shutdown)

	// Run discards whatever is already queued when its first window
	// opens, then waits freshWindow for a new bundle: enqueue inside it.
	time.Sleep(freshWindow / 2)
	assert.NoError(t, s.Enqueue(arbengine.Bundle{Description: "arb-1"}))

	assert.Eventually(t, func() bool {
		return primary.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, fallback.callCount())
	assert.Equal(t, uint64(1), s.Stats().TotalSubmitted)

	cancel()
	close(shutdown)
}

func TestRunFallsBackWhenPrimaryFails(t *testing.T) {
	primary := &stubTransport{err: errors.New("primary down")}
	fallback := &stubTransport{outcome: arbengine.BundleLanded}
	s := New(primary, fallback)

	ctx, cancel := context.WithCancel(context.Background())
	shutdown := make(chan struct{})
	go s.Run(ctx, shutdown)

	time.Sleep(freshWindow / 2) // enqueue inside the first fresh window
	assert.NoError(t, s.Enqueue(arbengine.Bundle{Description: "arb-2"}))

	assert.Eventually(t, func() bool {
		return fallback.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, uint64(1), s.Stats().TotalSubmitted)

	cancel()
	close(shutdown)
}

func TestRunCountsUnknownOutcomeAsSubmittedUnverified(t *testing.T) {
	primary := &stubTransport{outcome: arbengine.BundleUnknown}
	fallback := &stubTransport{}
	s := New(primary, fallback)

	ctx, cancel := context.WithCancel(context.Background())
	shutdown := make(chan struct{})
	go s.Run(ctx, shutdown)

	time.Sleep(freshWindow / 2) // enqueue inside the first fresh window
	assert.NoError(t, s.Enqueue(arbengine.Bundle{Description: "arb-3"}))

	assert.Eventually(t, func() bool {
		return s.Stats().TotalSubmitted == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	close(shutdown)
}

type stubConfirmer struct {
	outcome arbengine.BundleOutcome
	err     error
}

func (c stubConfirmer) Confirm(ctx context.Context, b arbengine.Bundle) (arbengine.BundleOutcome, error) {
	return c.outcome, c.err
}

func TestRunConfirmerOverridesRelayOutcome(t *testing.T) {
	primary := &stubTransport{outcome: arbengine.BundleLanded}
	s := New(primary, &stubTransport{})
	s.SetConfirmer(stubConfirmer{outcome: arbengine.BundleFailed})

	ctx, cancel := context.WithCancel(context.Background())
	shutdown := make(chan struct{})
	go s.Run(ctx, shutdown)

	time.Sleep(freshWindow / 2) // enqueue inside the first fresh window
	assert.NoError(t, s.Enqueue(arbengine.Bundle{Description: "arb-4"}))

	assert.Eventually(t, func() bool {
		return s.Stats().TotalFailed == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(0), s.Stats().TotalSubmitted)

	cancel()
	close(shutdown)
}

func TestRunConfirmerErrorLeavesBundleUnverified(t *testing.T) {
	primary := &stubTransport{outcome: arbengine.BundleLanded}
	s := New(primary, &stubTransport{})
	s.SetConfirmer(stubConfirmer{err: errors.New("receipt not found in window")})

	ctx, cancel := context.WithCancel(context.Background())
	shutdown := make(chan struct{})
	go s.Run(ctx, shutdown)

	time.Sleep(freshWindow / 2) // enqueue inside the first fresh window
	assert.NoError(t, s.Enqueue(arbengine.Bundle{Description: "arb-5"}))

	// Unknown counts as submitted-unverified, not landed and not failed.
	assert.Eventually(t, func() bool {
		return s.Stats().TotalSubmitted == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(0), s.Stats().TotalFailed)

	cancel()
	close(shutdown)
}

func TestRunStopsOnShutdown(t *testing.T) {
	s := New(&stubTransport{outcome: arbengine.BundleLanded}, &stubTransport{outcome: arbengine.BundleLanded})
	shutdown := make(chan struct{})

	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), shutdown)
		close(done)
	}()

	close(shutdown)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after shutdown closed")
	}
}

func TestRunInvokesOnResolveWithTerminalOutcome(t *testing.T) {
	primary := &stubTransport{outcome: arbengine.BundleLanded}
	s := New(primary, &stubTransport{})

	ctx, cancel := context.WithCancel(context.Background())
	shutdown := make(chan struct{})
	go s.Run(ctx, shutdown)

	resolved := make(chan arbengine.BundleOutcome, 1)
	time.Sleep(freshWindow / 2) // enqueue inside the first fresh window
	assert.NoError(t, s.Enqueue(arbengine.Bundle{
		Description: "arb-6",
		OnResolve:   func(o arbengine.BundleOutcome) { resolved <- o },
	}))

	select {
	case o := <-resolved:
		assert.Equal(t, arbengine.BundleLanded, o)
	case <-time.After(2 * time.Second):
		t.Fatal("OnResolve was not invoked after submission")
	}

	cancel()
	close(shutdown)
}

func TestDrainStaleResolvesDiscardedBundlesAsFailed(t *testing.T) {
	s := New(&stubTransport{}, &stubTransport{})

	resolved := make(chan arbengine.BundleOutcome, 2)
	for i := 0; i < 2; i++ {
		assert.NoError(t, s.Enqueue(arbengine.Bundle{
			Description: "stale",
			OnResolve:   func(o arbengine.BundleOutcome) { resolved <- o },
		}))
	}

	s.drainStale()

	for i := 0; i < 2; i++ {
		select {
		case o := <-resolved:
			assert.Equal(t, arbengine.BundleFailed, o)
		default:
			t.Fatal("drained bundle was not resolved")
		}
	}
	assert.Equal(t, uint64(2), s.Stats().TotalFailed)
}
