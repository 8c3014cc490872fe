// Package position implements the lock-free Position Tracker:
// two atomic 64-bit counters tracking total tradeable capital and
// in-flight reservations, grounded on a CAS-loop pattern re-expressed
// idiomatically with atomic.Int64.CompareAndSwap.
package position

import (
	"fmt"
	"log"
	"math/big"
	"sync/atomic"

	"arbengine"
)

// Tracker is safe for concurrent use; every operation is either a
// single atomic load/store or a CAS loop, never a mutex.
type Tracker struct {
	totalCapitalMinor atomic.Int64
	inFlightMinor     atomic.Int64
	maxPositionMinor  int64
	feeReserveMinor   int64
}

// NewTracker constructs a Tracker with the given max single-position
// size and a fee reserve withheld from every wallet-balance update.
func NewTracker(maxPositionMinor, feeReserveMinor int64) *Tracker {
	return &Tracker{maxPositionMinor: maxPositionMinor, feeReserveMinor: feeReserveMinor}
}

// CanOpen reports whether a position of size can be reserved right now:
// size <= max_position AND size <= (total - in_flight).
func (t *Tracker) CanOpen(size int64) bool {
	if size > t.maxPositionMinor {
		return false
	}
	total := t.totalCapitalMinor.Load()
	inFlight := t.inFlightMinor.Load()
	return size <= total-inFlight
}

// Reserve attempts to reserve size minor units via a CAS loop on
// in_flight. It returns ErrExceedsMaxPosition if size alone exceeds the
// configured ceiling, or ErrInsufficientCapital if available capital is
// too low at the moment the CAS succeeds in observing current state.
func (t *Tracker) Reserve(size int64) error {
	if size <= 0 {
		return fmt.Errorf("%w: reserve size must be positive", arbengine.ErrInsufficientCapital)
	}
	if size > t.maxPositionMinor {
		return fmt.Errorf("%w: size %d exceeds max %d", arbengine.ErrExceedsMaxPosition, size, t.maxPositionMinor)
	}

	for {
		inFlight := t.inFlightMinor.Load()
		total := t.totalCapitalMinor.Load()
		if size > total-inFlight {
			return fmt.Errorf("%w: requested %d, available %d", arbengine.ErrInsufficientCapital, size, total-inFlight)
		}
		if t.inFlightMinor.CompareAndSwap(inFlight, inFlight+size) {
			return nil
		}
		// lost the race to a concurrent Reserve/Release; retry with fresh values
	}
}

// Release unconditionally decrements in_flight by size. It never
// panics; an observed underflow (in_flight going negative) is logged as
// a warning and clamped back to zero, since that indicates a caller bug
// elsewhere rather than something Release itself should escalate.
func (t *Tracker) Release(size int64) {
	if size <= 0 {
		return
	}
	for {
		inFlight := t.inFlightMinor.Load()
		next := inFlight - size
		if next < 0 {
			log.Printf("position: in_flight underflow releasing %d from %d, clamping to 0", size, inFlight)
			next = 0
		}
		if t.inFlightMinor.CompareAndSwap(inFlight, next) {
			return
		}
	}
}

// UpdateFromWallet atomically sets total_capital to max(0, balance -
// fee_reserve), reflecting a freshly observed on-chain wallet balance.
func (t *Tracker) UpdateFromWallet(balanceMinor int64) {
	next := balanceMinor - t.feeReserveMinor
	if next < 0 {
		next = 0
	}
	t.totalCapitalMinor.Store(next)
}

// State returns a point-in-time copy of both counters for reporting.
func (t *Tracker) State() arbengine.CapitalState {
	total := t.totalCapitalMinor.Load()
	inFlight := t.inFlightMinor.Load()
	return arbengine.CapitalState{
		TotalTradeable: big.NewInt(total),
		InFlight:       big.NewInt(inFlight),
	}
}
