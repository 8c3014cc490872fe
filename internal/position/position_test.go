package position

import (
	"sync"
	"testing"

	"arbengine"

	"github.com/stretchr/testify/assert"
)

func TestCanOpenRespectsMaxPositionAndAvailable(t *testing.T) {
	tr := NewTracker(1000, 0)
	tr.UpdateFromWallet(500)

	assert.True(t, tr.CanOpen(500))
	assert.False(t, tr.CanOpen(501))
	assert.False(t, tr.CanOpen(1001)) // exceeds max_position even if capital allowed it
}

func TestReserveAndReleaseRoundTrip(t *testing.T) {
	tr := NewTracker(1000, 0)
	tr.UpdateFromWallet(500)

	assert.NoError(t, tr.Reserve(300))
	assert.Equal(t, int64(300), tr.State().InFlight.Int64())

	tr.Release(300)
	assert.Equal(t, int64(0), tr.State().InFlight.Int64())
}

func TestReserveExceedsMaxPosition(t *testing.T) {
	tr := NewTracker(100, 0)
	tr.UpdateFromWallet(1000)
	err := tr.Reserve(200)
	assert.ErrorIs(t, err, arbengine.ErrExceedsMaxPosition)
}

func TestReserveInsufficientCapital(t *testing.T) {
	tr := NewTracker(1000, 0)
	tr.UpdateFromWallet(100)
	err := tr.Reserve(500)
	assert.ErrorIs(t, err, arbengine.ErrInsufficientCapital)
}

func TestReleaseUnderflowClampsToZeroWithoutPanicking(t *testing.T) {
	tr := NewTracker(1000, 0)
	assert.NotPanics(t, func() {
		tr.Release(50)
	})
	assert.Equal(t, int64(0), tr.State().InFlight.Int64())
}

func TestUpdateFromWalletWithholdsFeeReserve(t *testing.T) {
	tr := NewTracker(1000, 50)
	tr.UpdateFromWallet(200)
	assert.Equal(t, int64(150), tr.State().TotalTradeable.Int64())

	tr.UpdateFromWallet(10) // below fee reserve, clamps to zero
	assert.Equal(t, int64(0), tr.State().TotalTradeable.Int64())
}

// TestConcurrentReserveReleaseNeverGoesNegativeOrOverAllocates exercises
// the CAS loop invariant: after any sequence of Reserve/Release
// pairs, in_flight returns to zero, and no goroutine ever observes
// in_flight exceeding total_capital.
func TestConcurrentReserveReleaseNeverGoesNegativeOrOverAllocates(t *testing.T) {
	tr := NewTracker(10, 0)
	tr.UpdateFromWallet(1000)

	var wg sync.WaitGroup
	const goroutines = 50
	const iterations = 200

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				if err := tr.Reserve(1); err == nil {
					st := tr.State()
					assert.LessOrEqual(t, st.InFlight.Int64(), st.TotalTradeable.Int64())
					tr.Release(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), tr.State().InFlight.Int64())
}
