package rpcclient

import (
	"context"
	"errors"
	"testing"

	"arbengine"

	"github.com/stretchr/testify/assert"
)

func TestIsTransientClassification(t *testing.T) {
	assert.False(t, isTransient(nil))
	assert.False(t, isTransient(errors.New("account not found")))
	assert.False(t, isTransient(errors.New("execution reverted: insufficient output")))
	assert.True(t, isTransient(errors.New("connection reset by peer")))
	assert.True(t, isTransient(errors.New("context deadline exceeded")))
}

func TestWithRetryReturnsImmediatelyOnNonTransientError(t *testing.T) {
	c := &Client{}
	calls := 0
	err := c.withRetry(context.Background(), func() error {
		calls++
		return errors.New("account not found")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, c.consecutiveFailures)
}

func TestWithRetryExhaustsAttemptsOnTransientError(t *testing.T) {
	c := &Client{}
	calls := 0
	err := c.withRetry(context.Background(), func() error {
		calls++
		return errors.New("timeout")
	})
	assert.Error(t, err)
	assert.Equal(t, maxAttempts, calls)
	assert.Equal(t, 1, c.consecutiveFailures)
}

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	c := &Client{}
	calls := 0
	err := c.withRetry(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("timeout")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, c.consecutiveFailures)
}

func TestCircuitBreakerTripsAfterFiveConsecutiveFailures(t *testing.T) {
	c := &Client{}
	for i := 0; i < circuitTripLimit; i++ {
		c.RecordFailure()
	}
	err := c.CheckCircuitBreaker()
	assert.ErrorIs(t, err, arbengine.ErrCircuitTripped)
}

func TestCircuitBreakerResetsOnSuccess(t *testing.T) {
	c := &Client{}
	for i := 0; i < circuitTripLimit-1; i++ {
		c.RecordFailure()
	}
	assert.NoError(t, c.CheckCircuitBreaker())
	c.RecordSuccess()
	c.RecordFailure()
	assert.NoError(t, c.CheckCircuitBreaker())
}

func TestResetCircuitBreakerClearsTrippedState(t *testing.T) {
	c := &Client{}
	for i := 0; i < circuitTripLimit; i++ {
		c.RecordFailure()
	}
	assert.Error(t, c.CheckCircuitBreaker())
	c.ResetCircuitBreaker()
	assert.NoError(t, c.CheckCircuitBreaker())
}
