// Package submitter implements the bundle submitter queue: a bounded
// channel feeding a dedicated goroutine that enforces exactly one
// submission per rate-limit window, draining stale bundles and waiting
// briefly for a fresh one before every submission.
package submitter

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"arbengine"

	"golang.org/x/time/rate"
)

const (
	queueCapacity   = 100
	submitInterval  = 1500 * time.Millisecond
	freshWindow     = 100 * time.Millisecond
	primaryTimeout  = 5 * time.Second
	fallbackTimeout = 10 * time.Second
	statusWait      = 10 * time.Second
)

// Transport submits a Bundle and reports its terminal outcome.
type Transport interface {
	Submit(ctx context.Context, b arbengine.Bundle) (arbengine.BundleOutcome, error)
}

// Confirmer verifies a submitted bundle's landing by transaction-signature
// polling, the authoritative confirmation path; the transport's own
// reported outcome is an advisory hint only. A confirmation that cannot
// complete within statusWait leaves the bundle Unknown
// (submitted-unverified).
type Confirmer interface {
	Confirm(ctx context.Context, b arbengine.Bundle) (arbengine.BundleOutcome, error)
}

// Stats is a point-in-time copy of the submitter's rolling counters.
type Stats struct {
	TotalQueued    uint64
	TotalSubmitted uint64
	TotalFailed    uint64
	QueueFullDrops uint64
	QueueDepth     int
}

// Submitter owns the bounded channel and the dedicated drain goroutine.
type Submitter struct {
	primary   Transport
	fallback  Transport
	confirmer Confirmer
	limiter   *rate.Limiter

	queue chan arbengine.Bundle

	mu    sync.Mutex
	stats Stats
}

// New constructs a Submitter with primary (fast, low-latency) and
// fallback (HTTP-style) transports, paced by a rate.Limiter enforcing
// exactly one submission per submitInterval.
func New(primary, fallback Transport) *Submitter {
	return &Submitter{
		primary:  primary,
		fallback: fallback,
		limiter:  rate.NewLimiter(rate.Every(submitInterval), 1),
		queue:    make(chan arbengine.Bundle, queueCapacity),
	}
}

// SetConfirmer installs the authoritative post-submission confirmation
// path. When unset, the transport's reported outcome is taken as-is.
func (s *Submitter) SetConfirmer(c Confirmer) { s.confirmer = c }

// Enqueue offers b to the queue without blocking. If the queue is full
// the bundle is dropped immediately and ErrQueueFull is returned,
// preserving detector responsiveness during overload.
func (s *Submitter) Enqueue(b arbengine.Bundle) error {
	s.mu.Lock()
	s.stats.TotalQueued++
	s.mu.Unlock()

	select {
	case s.queue <- b:
		return nil
	default:
		s.mu.Lock()
		s.stats.QueueFullDrops++
		s.mu.Unlock()
		return arbengine.ErrQueueFull
	}
}

// Run drives the dedicated submission goroutine until ctx is done or
// shutdown closes. It enforces the rate limit, then drains every
// currently-queued (now stale) bundle, then waits up to freshWindow for
// one new arrival before attempting a submission.
func (s *Submitter) Run(ctx context.Context, shutdown <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		default:
		}

		waitCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-shutdown:
				cancel()
			case <-waitCtx.Done():
			}
		}()
		err := s.limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			return // ctx or shutdown fired before the rate limiter admitted us
		}

		s.drainStale()

		bundle, ok := s.waitForFresh(ctx, shutdown)
		if !ok {
			continue // no fresh opportunity in the window; skip this cycle
		}

		s.submitOne(ctx, bundle)
	}
}

// drainStale performs a non-blocking receive loop, discarding every
// bundle already sitting in the queue when the rate-limit window opens.
func (s *Submitter) drainStale() {
	drained := 0
	for {
		select {
		case b := <-s.queue:
			if b.OnResolve != nil {
				b.OnResolve(arbengine.BundleFailed)
			}
			drained++
		default:
			if drained > 0 {
				s.mu.Lock()
				s.stats.TotalFailed += uint64(drained)
				s.mu.Unlock()
				log.Printf("submitter: discarded %d stale bundles waiting for fresh", drained)
			}
			return
		}
	}
}

// waitForFresh waits up to freshWindow for a newly arriving bundle.
func (s *Submitter) waitForFresh(ctx context.Context, shutdown <-chan struct{}) (arbengine.Bundle, bool) {
	timer := time.NewTimer(freshWindow)
	defer timer.Stop()

	select {
	case b := <-s.queue:
		return b, true
	case <-timer.C:
		return arbengine.Bundle{}, false
	case <-ctx.Done():
		return arbengine.Bundle{}, false
	case <-shutdown:
		return arbengine.Bundle{}, false
	}
}

func (s *Submitter) submitOne(ctx context.Context, b arbengine.Bundle) {
	primaryCtx, cancel := context.WithTimeout(ctx, primaryTimeout)
	outcome, err := s.primary.Submit(primaryCtx, b)
	cancel()

	if err != nil {
		log.Printf("submitter: primary transport failed for %q: %v, falling back", b.Description, err)
		fallbackCtx, cancel2 := context.WithTimeout(ctx, fallbackTimeout)
		outcome, err = s.fallback.Submit(fallbackCtx, b)
		cancel2()
	}

	if err == nil && s.confirmer != nil {
		// Signature-based confirmation overrides the relay's advisory
		// status; a verification that can't complete inside statusWait
		// leaves the bundle submitted-unverified.
		confirmCtx, cancel3 := context.WithTimeout(ctx, statusWait)
		verified, cerr := s.confirmer.Confirm(confirmCtx, b)
		cancel3()
		if cerr != nil {
			outcome = arbengine.BundleUnknown
		} else {
			outcome = verified
		}
	}

	if err != nil {
		// No same-opportunity retry: arbitrage is time-sensitive, and by
		// the time a retry is possible the price has likely moved.
		outcome = arbengine.BundleFailed
		log.Printf("submitter: bundle %q failed permanently: %v", b.Description, wrapSubmissionError(err))
	}
	if b.OnResolve != nil {
		b.OnResolve(outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch outcome {
	case arbengine.BundleLanded:
		s.stats.TotalSubmitted++
	case arbengine.BundleFailed:
		s.stats.TotalFailed++
	case arbengine.BundleUnknown:
		// Counted as submitted-unverified, not as landed.
		s.stats.TotalSubmitted++
	default:
		s.stats.TotalFailed++
	}
}

// Stats returns a point-in-time copy of the submitter's counters.
func (s *Submitter) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.stats
	d.QueueDepth = len(s.queue)
	return d
}

// wrapSubmissionError wraps a transport error in ErrSubmissionFailed, a
// stable sentinel to compare against in logs/metrics.
func wrapSubmissionError(err error) error {
	return fmt.Errorf("%w: %v", arbengine.ErrSubmissionFailed, err)
}
