// Package safety implements the safety/policy envelope: a filesystem
// kill-switch sentinel, a cooperative shutdown broadcast, and a circuit
// breaker tracking consecutive execution failures plus daily trade/loss
// caps.
package safety

import (
	"fmt"
	"math/big"
	"os"
	"sync"
	"time"

	"arbengine"
)

// CircuitBreaker tracks recent errors within a rolling window and halts
// once the threshold is reached, or immediately on a critical error.
type CircuitBreaker struct {
	mu sync.Mutex

	ErrorWindow    time.Duration
	ErrorThreshold int

	lastErrors []time.Time
	critical   bool
}

// NewCircuitBreaker constructs a CircuitBreaker with the given window
// and threshold.
func NewCircuitBreaker(window time.Duration, threshold int) *CircuitBreaker {
	return &CircuitBreaker{ErrorWindow: window, ErrorThreshold: threshold}
}

// RecordError records an error occurrence. critical=true forces an
// immediate, sticky halt regardless of the rolling count; otherwise the
// breaker halts once ErrorThreshold errors have landed within
// ErrorWindow. Returns true if the caller should halt.
func (cb *CircuitBreaker) RecordError(now time.Time, critical bool) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if critical {
		cb.critical = true
		return true
	}

	cb.lastErrors = append(cb.lastErrors, now)
	cb.lastErrors = pruneBefore(cb.lastErrors, now.Add(-cb.ErrorWindow))

	return len(cb.lastErrors) >= cb.ErrorThreshold
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	out := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// Reset clears the circuit breaker state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastErrors = nil
	cb.critical = false
}

// ErrorRate returns the current error rate in errors per hour.
func (cb *CircuitBreaker) ErrorRate() float64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.lastErrors) == 0 {
		return 0
	}
	hours := cb.ErrorWindow.Hours()
	if hours <= 0 {
		return 0
	}
	return float64(len(cb.lastErrors)) / hours
}

// Tripped reports whether the breaker is in a halted state right now,
// without recording a new error.
func (cb *CircuitBreaker) Tripped(now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.critical {
		return true
	}
	cb.lastErrors = pruneBefore(cb.lastErrors, now.Add(-cb.ErrorWindow))
	return len(cb.lastErrors) >= cb.ErrorThreshold
}

// DailyCounters tracks the per-day trade count and cumulative loss (a
// positive magnitude; profits are not counted) used by the daily-cap
// policy breaches.
type DailyCounters struct {
	mu sync.Mutex

	day            time.Time
	trades         int
	cumulativeLoss *big.Int // tracked as a positive magnitude of losses
}

// NewDailyCounters constructs a DailyCounters rolled over at midnight
// relative to now.
func NewDailyCounters(now time.Time) *DailyCounters {
	return &DailyCounters{day: startOfDay(now), cumulativeLoss: big.NewInt(0)}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (d *DailyCounters) rolloverIfNeeded(now time.Time) {
	if startOfDay(now).After(d.day) {
		d.day = startOfDay(now)
		d.trades = 0
		d.cumulativeLoss = big.NewInt(0)
	}
}

// RecordTrade increments today's trade count.
func (d *DailyCounters) RecordTrade(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverIfNeeded(now)
	d.trades++
}

// RecordPnL adds a signed PnL delta (negative on loss) to today's
// cumulative loss tracker.
func (d *DailyCounters) RecordPnL(now time.Time, delta *big.Int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverIfNeeded(now)
	if delta.Sign() < 0 {
		d.cumulativeLoss.Sub(d.cumulativeLoss, delta) // subtract a negative adds its magnitude
	}
}

// Snapshot returns today's trade count and cumulative loss magnitude.
func (d *DailyCounters) Snapshot(now time.Time) (trades int, loss *big.Int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverIfNeeded(now)
	return d.trades, new(big.Int).Set(d.cumulativeLoss)
}

// Policy bundles the configured caps that gate the scan loop.
type Policy struct {
	EmergencyStopFile  string
	ConsecutiveFailCap int
	DailyTradeCap      int
	DailyLossCapMinor  *big.Int
	Breaker            *CircuitBreaker
	Daily              *DailyCounters

	mu                  sync.Mutex
	consecutiveFailures int
}

// NewPolicy constructs a Policy from its component parts.
func NewPolicy(emergencyStopFile string, consecutiveFailCap, dailyTradeCap int, dailyLossCapMinor *big.Int, breaker *CircuitBreaker, daily *DailyCounters) *Policy {
	return &Policy{
		EmergencyStopFile:  emergencyStopFile,
		ConsecutiveFailCap: consecutiveFailCap,
		DailyTradeCap:      dailyTradeCap,
		DailyLossCapMinor:  dailyLossCapMinor,
		Breaker:            breaker,
		Daily:              daily,
	}
}

// RecordFailure increments the consecutive-failure counter.
func (p *Policy) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveFailures++
}

// RecordSuccess resets the consecutive-failure counter.
func (p *Policy) RecordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveFailures = 0
}

// ShouldStop is the disjunction of every policy breach, evaluated once
// per scan iteration: emergency-stop sentinel, circuit breaker
// tripped, consecutive-failure cap, daily trade cap, or daily loss cap.
func (p *Policy) ShouldStop(now time.Time) error {
	if p.emergencyStopFileExists() {
		return fmt.Errorf("%w: sentinel file present", arbengine.ErrEmergencyStop)
	}

	p.mu.Lock()
	failures := p.consecutiveFailures
	p.mu.Unlock()
	if p.ConsecutiveFailCap > 0 && failures >= p.ConsecutiveFailCap {
		return fmt.Errorf("%w: %d consecutive failures", arbengine.ErrCircuitTripped, failures)
	}

	if p.Breaker != nil && p.Breaker.Tripped(now) {
		return fmt.Errorf("%w: error-rate circuit breaker tripped", arbengine.ErrCircuitTripped)
	}

	if p.Daily != nil {
		trades, loss := p.Daily.Snapshot(now)
		if p.DailyTradeCap > 0 && trades >= p.DailyTradeCap {
			return fmt.Errorf("%w: %d trades today", arbengine.ErrDailyTradeCapReached, trades)
		}
		if p.DailyLossCapMinor != nil && loss.Cmp(p.DailyLossCapMinor) >= 0 {
			return fmt.Errorf("%w: cumulative loss %s", arbengine.ErrDailyLossCapReached, loss.String())
		}
	}

	return nil
}

func (p *Policy) emergencyStopFileExists() bool {
	if p.EmergencyStopFile == "" {
		return false
	}
	_, err := os.Stat(p.EmergencyStopFile)
	return err == nil
}

// Shutdown is a broadcast cancellation signal: a channel closed exactly
// once, the idiomatic Go analogue of tokio::sync::broadcast, subscribed
// to by every long-running goroutine so every blocking sleep is a
// select against it.
type Shutdown struct {
	ch   chan struct{}
	once sync.Once
}

// NewShutdown constructs an unfired Shutdown signal.
func NewShutdown() *Shutdown {
	return &Shutdown{ch: make(chan struct{})}
}

// C returns the channel to select against; it closes exactly once.
func (s *Shutdown) C() <-chan struct{} { return s.ch }

// Fire closes the channel if it hasn't already been closed. Safe to
// call multiple times and from multiple goroutines (e.g. both a SIGINT
// handler and an operator command).
func (s *Shutdown) Fire() {
	s.once.Do(func() { close(s.ch) })
}
