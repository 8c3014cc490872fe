package venue

import (
	"context"
	"fmt"

	"arbengine"

	"github.com/ethereum/go-ethereum/common"
)

// DarkPoolBuilder represents the "dark" venue family: pools that settle
// through an off-chain matching engine rather than an on-chain curve.
// Building a correct swap instruction for this family requires a signed
// quote from that off-chain matcher, which is outside this engine's
// contract surface. This builder never returns a placeholder
// instruction: every call fails with ErrVenueUnsupported so a dark-pool
// leg is always dropped rather than silently mis-executed.
type DarkPoolBuilder struct{}

func (DarkPoolBuilder) Family() string { return "dark" }

func (DarkPoolBuilder) Build(ctx context.Context, poolShortID string, params SwapParams, user common.Address) ([]Instruction, error) {
	return nil, fmt.Errorf("%w: dark-pool venue requires an off-chain matcher quote not available to this builder", arbengine.ErrVenueUnsupported)
}
