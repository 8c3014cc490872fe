package safety

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"arbengine"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerTripsOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 3)
	now := time.Now()

	assert.False(t, cb.RecordError(now, false))
	assert.False(t, cb.RecordError(now, false))
	assert.True(t, cb.RecordError(now, false))
}

func TestCircuitBreakerCriticalErrorHaltsImmediately(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 100)
	assert.True(t, cb.RecordError(time.Now(), true))
	assert.True(t, cb.Tripped(time.Now()))
}

func TestCircuitBreakerWindowExpiry(t *testing.T) {
	cb := NewCircuitBreaker(10*time.Millisecond, 2)
	now := time.Now()
	cb.RecordError(now, false)

	later := now.Add(50 * time.Millisecond)
	assert.False(t, cb.Tripped(later)) // first error aged out of the window
}

func TestCircuitBreakerResetClearsState(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 1)
	now := time.Now()
	assert.True(t, cb.RecordError(now, false))
	cb.Reset()
	assert.False(t, cb.Tripped(now))
}

func TestCircuitBreakerErrorRate(t *testing.T) {
	cb := NewCircuitBreaker(time.Hour, 100)
	now := time.Now()
	cb.RecordError(now, false)
	cb.RecordError(now, false)
	assert.InDelta(t, 2.0, cb.ErrorRate(), 0.001)
}

func TestDailyCountersRolloverAtMidnight(t *testing.T) {
	day1 := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	dc := NewDailyCounters(day1)
	dc.RecordTrade(day1)

	trades, _ := dc.Snapshot(day1)
	assert.Equal(t, 1, trades)

	day2 := time.Date(2026, 1, 2, 1, 0, 0, 0, time.UTC)
	trades2, loss2 := dc.Snapshot(day2)
	assert.Equal(t, 0, trades2)
	assert.Equal(t, big.NewInt(0), loss2)
}

func TestDailyCountersAccumulatesLossMagnitude(t *testing.T) {
	now := time.Now()
	dc := NewDailyCounters(now)
	dc.RecordPnL(now, big.NewInt(-500))
	dc.RecordPnL(now, big.NewInt(300)) // profit doesn't offset the loss counter

	_, loss := dc.Snapshot(now)
	assert.Equal(t, big.NewInt(500), loss)
}

func TestPolicyShouldStopOnEmergencyStopFile(t *testing.T) {
	dir := t.TempDir()
	sentinel := filepath.Join(dir, ".emergency_stop")
	assert.NoError(t, os.WriteFile(sentinel, []byte{}, 0o644))

	p := NewPolicy(sentinel, 0, 0, nil, nil, nil)
	err := p.ShouldStop(time.Now())
	assert.ErrorIs(t, err, arbengine.ErrEmergencyStop)
}

func TestPolicyShouldStopOnConsecutiveFailureCap(t *testing.T) {
	p := NewPolicy("", 3, 0, nil, nil, nil)
	p.RecordFailure()
	p.RecordFailure()
	p.RecordFailure()
	err := p.ShouldStop(time.Now())
	assert.Error(t, err)
}

func TestPolicyRecordSuccessResetsConsecutiveFailures(t *testing.T) {
	p := NewPolicy("", 3, 0, nil, nil, nil)
	p.RecordFailure()
	p.RecordFailure()
	p.RecordSuccess()
	assert.NoError(t, p.ShouldStop(time.Now()))
}

func TestPolicyShouldStopOnDailyTradeCap(t *testing.T) {
	now := time.Now()
	daily := NewDailyCounters(now)
	daily.RecordTrade(now)
	daily.RecordTrade(now)

	p := NewPolicy("", 0, 2, nil, nil, daily)
	err := p.ShouldStop(now)
	assert.ErrorIs(t, err, arbengine.ErrDailyTradeCapReached)
}

func TestPolicyShouldStopOnDailyLossCap(t *testing.T) {
	now := time.Now()
	daily := NewDailyCounters(now)
	daily.RecordPnL(now, big.NewInt(-1000))

	p := NewPolicy("", 0, 0, big.NewInt(500), nil, daily)
	err := p.ShouldStop(now)
	assert.ErrorIs(t, err, arbengine.ErrDailyLossCapReached)
}

func TestPolicyPassesWhenNoBreachPresent(t *testing.T) {
	p := NewPolicy("", 5, 100, big.NewInt(1_000_000), NewCircuitBreaker(time.Minute, 5), NewDailyCounters(time.Now()))
	assert.NoError(t, p.ShouldStop(time.Now()))
}

func TestShutdownFiresOnceAndIsIdempotent(t *testing.T) {
	s := NewShutdown()
	assert.NotPanics(t, func() {
		s.Fire()
		s.Fire()
	})

	select {
	case <-s.C():
	default:
		t.Fatal("shutdown channel should be closed after Fire")
	}
}
