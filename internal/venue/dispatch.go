package venue

import (
	"context"
	"fmt"

	"arbengine"

	"github.com/ethereum/go-ethereum/common"
)

// Dispatcher routes a venue tag to its family builder, returning
// ErrVenueUnsupported for any family with no registered builder; there
// is no half-implemented fallback.
type Dispatcher struct {
	builders map[string]Builder
}

// NewDispatcher constructs a Dispatcher from the given builders, keyed
// by their own Family().
func NewDispatcher(builders ...Builder) *Dispatcher {
	d := &Dispatcher{builders: make(map[string]Builder, len(builders))}
	for _, b := range builders {
		d.builders[b.Family()] = b
	}
	return d
}

// Build dispatches to the builder registered for venue's family prefix.
func (d *Dispatcher) Build(ctx context.Context, venueTag arbengine.VenueTag, poolShortID string, params SwapParams, user common.Address) ([]Instruction, error) {
	b, ok := d.builders[venueTag.Family()]
	if !ok {
		return nil, fmt.Errorf("%w: venue family %q", arbengine.ErrVenueUnsupported, venueTag.Family())
	}
	return b.Build(ctx, poolShortID, params, user)
}
