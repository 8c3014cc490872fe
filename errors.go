package arbengine

import "errors"

// Error taxonomy. These are behavioural kinds surfaced to callers;
// call sites that add context wrap them with fmt.Errorf("...: %w", err).
var (
	ErrInsufficientCapital  = errors.New("insufficient capital")
	ErrExceedsMaxPosition   = errors.New("exceeds max position")
	ErrCircuitTripped       = errors.New("rpc circuit breaker tripped")
	ErrAccountMissing       = errors.New("account missing")
	ErrResolutionMiss       = errors.New("pool resolution miss")
	ErrGhostPool            = errors.New("ghost pool: validity check failed")
	ErrOpportunityStale     = errors.New("opportunity stale")
	ErrVenueUnsupported     = errors.New("venue unsupported")
	ErrSlippageInvalid      = errors.New("invalid slippage parameters")
	ErrSimulationFailed     = errors.New("simulation failed")
	ErrSubmissionFailed     = errors.New("submission failed")
	ErrQueueFull            = errors.New("submission queue full")
	ErrEmergencyStop        = errors.New("emergency stop sentinel present")
	ErrDailyTradeCapReached = errors.New("daily trade cap reached")
	ErrDailyLossCapReached  = errors.New("daily loss cap reached")
)
