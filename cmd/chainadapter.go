package main

import (
	"context"
	"fmt"

	"arbengine"
	"arbengine/internal/rpcclient"
	"arbengine/pkg/contractclient"

	"github.com/ethereum/go-ethereum/common"
)

// poolRegistryABI is the minimal surface of the deployment's on-chain
// pool-registry contract: a single view resolving an 8-byte short-id
// prefix to the full pool address. Only this one method is bound; the
// registry contract's wider surface is irrelevant to tier-4 resolution.
const poolRegistryABI = `[{"name":"poolByPrefix","type":"function","stateMutability":"view","inputs":[{"name":"prefix","type":"bytes8"}],"outputs":[{"name":"pool","type":"address"}]}]`

// chainAdapter narrows *rpcclient.Client onto the three chain-reading
// contracts the registry, venue builders, and blockhash cache each
// declare independently (registry.ChainReader, venue.ChainReader,
// blockhash.Source): one RPC client behind several narrow interfaces.
// Every read is gated on the client's circuit breaker, so a tripped
// breaker surfaces to the pool registry and venue builders instead of
// issuing further calls against a failing node.
type chainAdapter struct {
	*rpcclient.Client

	// poolRegistry is the tier-4 on-chain lookup contract; nil when no
	// POOL_REGISTRY_ADDR is configured, in which case tier-4 always
	// misses.
	poolRegistry *contractclient.ContractClient
}

// AccountData gates the promoted rpcclient method on the circuit breaker.
func (a chainAdapter) AccountData(ctx context.Context, addr common.Address) ([]byte, error) {
	if err := a.Client.CheckCircuitBreaker(); err != nil {
		return nil, err
	}
	return a.Client.AccountData(ctx, addr)
}

// AccountOwner gates the promoted rpcclient method on the circuit breaker.
func (a chainAdapter) AccountOwner(ctx context.Context, addr common.Address) (common.Address, error) {
	if err := a.Client.CheckCircuitBreaker(); err != nil {
		return common.Address{}, err
	}
	return a.Client.AccountOwner(ctx, addr)
}

// AccountExists adapts rpcclient's GetAccountExists to the name
// venue.ChainReader declares.
func (a chainAdapter) AccountExists(ctx context.Context, addr common.Address) (bool, error) {
	if err := a.Client.CheckCircuitBreaker(); err != nil {
		return false, err
	}
	return a.Client.GetAccountExists(ctx, addr)
}

// EnumeratePool resolves a short id through the on-chain pool-registry
// contract, the last-resort tier behind the in-memory map, the price
// publisher, and the persistent cache. Without a configured registry
// contract it always misses; a correctly seeded deployment resolves
// every pool in tiers 1-3.
func (a chainAdapter) EnumeratePool(ctx context.Context, shortID string, venue arbengine.VenueTag) (common.Address, error) {
	if err := a.Client.CheckCircuitBreaker(); err != nil {
		return common.Address{}, err
	}
	if a.poolRegistry == nil {
		return common.Address{}, fmt.Errorf("%w: on-chain enumeration unavailable for %s", arbengine.ErrResolutionMiss, shortID)
	}

	var prefix [8]byte
	copy(prefix[:], shortID)
	out, err := a.poolRegistry.Call(nil, "poolByPrefix", prefix)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s: %v", arbengine.ErrResolutionMiss, shortID, err)
	}
	addr, ok := out[0].(common.Address)
	if !ok || addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: registry contract has no pool for %s", arbengine.ErrResolutionMiss, shortID)
	}
	return addr, nil
}

// LatestBlockhash adapts the chain's latest header into the
// common.Hash the blockhash cache treats as an opaque freshness token.
func (a chainAdapter) LatestBlockhash(ctx context.Context) (common.Hash, error) {
	if err := a.Client.CheckCircuitBreaker(); err != nil {
		return common.Hash{}, err
	}
	header, err := a.Client.Raw().HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chainadapter: latest header: %w", err)
	}
	return header.Hash(), nil
}
