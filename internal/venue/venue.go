// Package venue implements the per-family swap instruction builders.
// Each builder resolves its pool through the registry, verifies
// on-chain ownership, ensures the user's token accounts exist, and
// encodes a venue-specific instruction. Every builder either returns a
// fully-formed Instruction or a "venue unsupported" error; there is no
// successful return with placeholder on-chain data.
package venue

import (
	"context"
	"fmt"
	"math/big"

	"arbengine"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AccountMeta mirrors the account-permission tuple every venue program
// expects in its instruction's account list.
type AccountMeta struct {
	Pubkey     common.Address
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single venue-program call: its target program, the
// account list it touches, and its opaque encoded payload. A Bundle's
// first transaction carries one Instruction per swap leg plus any
// prerequisite account-creation instructions and the tip transfer.
type Instruction struct {
	ProgramID common.Address
	Accounts  []AccountMeta
	Data      []byte
}

// SwapParams is the venue-agnostic swap request every builder accepts.
type SwapParams struct {
	AmountIn          *big.Int
	MinAmountOut      *big.Int
	ExpectedAmountOut *big.Int
	DirectionAToB     bool
}

// MinAmountOutFromSlippage computes min_amount_out from an expected
// output and a slippage tolerance in basis points: min = expected
// * (10000 - bps) / 10000.
func MinAmountOutFromSlippage(expected *big.Int, slippageBps int64) *big.Int {
	num := new(big.Int).Mul(expected, big.NewInt(10_000-slippageBps))
	return num.Div(num, big.NewInt(10_000))
}

// Validate enforces the slippage safety contract common to every
// builder: no zero amounts, and no obviously-wrong min_out.
func (p SwapParams) Validate() error {
	if p.AmountIn == nil || p.AmountIn.Sign() == 0 {
		return fmt.Errorf("%w: amount_in is zero", arbengine.ErrSlippageInvalid)
	}
	if p.MinAmountOut == nil || p.MinAmountOut.Sign() == 0 {
		return fmt.Errorf("%w: min_amount_out is zero", arbengine.ErrSlippageInvalid)
	}
	tenX := new(big.Int).Mul(p.AmountIn, big.NewInt(10))
	if p.MinAmountOut.Cmp(tenX) > 0 {
		return fmt.Errorf("%w: min_amount_out > 10x amount_in", arbengine.ErrSlippageInvalid)
	}
	return nil
}

// PoolResolver is the registry contract every builder depends on.
type PoolResolver interface {
	Resolve(ctx context.Context, shortID string, venue arbengine.VenueTag) (common.Address, error)
	IsPoolValidCached(shortID string) (valid bool, present bool)
	ValidateBatch(ctx context.Context, ids []string, venue arbengine.VenueTag) error
}

// ChainReader is the on-chain owner-verification and account-existence
// collaborator every builder depends on.
type ChainReader interface {
	AccountOwner(ctx context.Context, addr common.Address) (common.Address, error)
	AccountExists(ctx context.Context, addr common.Address) (bool, error)
}

// Builder is the single contract every venue family implements.
type Builder interface {
	// Family is the venue-tag prefix this builder serves.
	Family() string
	// Build resolves the pool, validates it, and encodes the swap
	// instruction (plus any prerequisite account-creation instructions).
	Build(ctx context.Context, poolShortID string, params SwapParams, user common.Address) ([]Instruction, error)
}

// resolveAndValidate performs the obligations common to every builder:
// resolve the pool address, ensure it is cached-valid, and (if expected)
// verify the on-chain owner against the venue program.
func resolveAndValidate(ctx context.Context, reg PoolResolver, chain ChainReader, shortID string, venue arbengine.VenueTag, expectedProgram common.Address) (common.Address, error) {
	addr, err := reg.Resolve(ctx, shortID, venue)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve pool %s: %w", shortID, err)
	}

	valid, present := reg.IsPoolValidCached(shortID)
	if !present {
		if err := reg.ValidateBatch(ctx, []string{shortID}, venue); err != nil {
			return common.Address{}, fmt.Errorf("validate pool %s: %w", shortID, err)
		}
		valid, _ = reg.IsPoolValidCached(shortID)
	}
	if !valid {
		return common.Address{}, fmt.Errorf("%w: %s", arbengine.ErrGhostPool, shortID)
	}

	if chain != nil && expectedProgram != (common.Address{}) {
		owner, err := chain.AccountOwner(ctx, addr)
		if err != nil {
			return common.Address{}, fmt.Errorf("verify owner of %s: %w", shortID, err)
		}
		if owner != expectedProgram {
			return common.Address{}, fmt.Errorf("%w: pool %s owned by %s, expected %s", arbengine.ErrVenueUnsupported, shortID, owner.Hex(), expectedProgram.Hex())
		}
	}
	return addr, nil
}

// ensureTokenAccounts prepends account-creation instructions for any of
// the user's associated token accounts (input/output mint) that do not
// yet exist on-chain, so the swap is atomic with its prerequisites.
func ensureTokenAccounts(ctx context.Context, chain ChainReader, programID, user, inputMint, outputMint common.Address) ([]Instruction, error) {
	var prereqs []Instruction
	for _, mint := range []common.Address{inputMint, outputMint} {
		ata := associatedTokenAccount(user, mint)
		if chain == nil {
			continue
		}
		exists, err := chain.AccountExists(ctx, ata)
		if err != nil {
			return nil, fmt.Errorf("check token account for mint %s: %w", mint.Hex(), err)
		}
		if !exists {
			prereqs = append(prereqs, Instruction{
				ProgramID: programID,
				Accounts: []AccountMeta{
					{Pubkey: user, IsSigner: true, IsWritable: true},
					{Pubkey: ata, IsSigner: false, IsWritable: true},
					{Pubkey: mint, IsSigner: false, IsWritable: false},
				},
				Data: []byte{0x01}, // create-associated-token-account discriminator
			})
		}
	}
	return prereqs, nil
}

// associatedTokenAccount derives a deterministic per-(owner,mint) token
// account address. Real venue programs derive this via a PDA; this
// derivation is a stand-in that is internally consistent (same owner +
// mint always yields the same address) since the exact derivation
// algorithm is venue-private and out of scope.
func associatedTokenAccount(owner, mint common.Address) common.Address {
	var buf [40]byte
	copy(buf[:20], owner.Bytes())
	copy(buf[20:], mint.Bytes())
	return common.BytesToAddress(crypto.Keccak256(buf[:])[12:])
}

// discriminator builds an 8-byte venue instruction discriminator from a
// method name the way every venue's bare-metal program expects: a
// truncated hash prefix, consistent across calls for the same name.
func discriminator(name string) []byte {
	return crypto.Keccak256([]byte(name))[:8]
}

// encodeSwapPayload packs the scalar swap arguments after the
// instruction discriminator: amount_in, min_amount_out, direction flag.
func encodeSwapPayload(name string, amountIn, minOut *big.Int, directionAToB bool) []byte {
	data := discriminator(name)
	data = append(data, leftPad32(amountIn)...)
	data = append(data, leftPad32(minOut)...)
	if directionAToB {
		data = append(data, 1)
	} else {
		data = append(data, 0)
	}
	return data
}

func leftPad32(v *big.Int) []byte {
	b := v.Bytes()
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
