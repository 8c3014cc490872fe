// Package registry resolves 8-character short pool IDs to full pool
// addresses through a four-tier cache hierarchy and caches
// ghost-pool validity decisions behind a TTL.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arbengine"

	"github.com/ethereum/go-ethereum/common"
)

// ValidityTTL is the lifetime of a validity cache decision.
const ValidityTTL = 300 * time.Second

// PriceResolver is the tier-2 collaborator: the price publisher's
// per-short-id lookup API.
type PriceResolver interface {
	ResolvePool(ctx context.Context, shortID string) (common.Address, error)
}

// PersistentCache is the optional tier-3 collaborator. A no-op
// implementation (NoopPersistentCache) satisfies it when no durable
// lookup is wired.
type PersistentCache interface {
	Lookup(ctx context.Context, shortID string) (arbengine.PoolInfo, bool, error)
	Store(ctx context.Context, info arbengine.PoolInfo) error
}

// ChainReader is the tier-4 collaborator plus the validity-check data
// source: on-chain account enumeration and fetch.
type ChainReader interface {
	AccountData(ctx context.Context, addr common.Address) ([]byte, error)
	AccountOwner(ctx context.Context, addr common.Address) (common.Address, error)
	EnumeratePool(ctx context.Context, shortID string, venue arbengine.VenueTag) (common.Address, error)
}

// NoopPersistentCache is the zero-configuration PersistentCache: every
// lookup misses, every store succeeds silently.
type NoopPersistentCache struct{}

func (NoopPersistentCache) Lookup(ctx context.Context, shortID string) (arbengine.PoolInfo, bool, error) {
	return arbengine.PoolInfo{}, false, nil
}

func (NoopPersistentCache) Store(ctx context.Context, info arbengine.PoolInfo) error { return nil }

// TierStats records per-tier hit counts and cumulative latency for the
// observability surface.
type TierStats struct {
	Hits          uint64
	CumulativeNs  int64
}

// MinAccountSize maps a venue family prefix to the minimum on-chain
// account byte size below which the account is treated as a ghost pool.
var MinAccountSize = map[string]int{
	"cpamm":   165,
	"clmm":    324,
	"dlmm":    400,
	"bcamm":   128,
	"dark":    96,
}

// UnsupportedPrograms lists on-chain program owners the registry must
// reject during tier-4 enumeration (legacy bonding-curve venues etc.).
var UnsupportedPrograms = map[common.Address]bool{}

// Registry is the pool registry: in-memory map, validity cache, and the
// external/persistent/on-chain tiers behind it.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]arbengine.PoolInfo

	validMu sync.RWMutex
	valid   map[string]arbengine.ValidityCacheEntry

	priceResolver PriceResolver
	persistent    PersistentCache
	chain         ChainReader

	statsMu sync.Mutex
	stats   [4]TierStats
}

// New constructs a Registry. persistent may be NoopPersistentCache{}.
func New(priceResolver PriceResolver, persistent PersistentCache, chain ChainReader) *Registry {
	if persistent == nil {
		persistent = NoopPersistentCache{}
	}
	return &Registry{
		pools:         make(map[string]arbengine.PoolInfo),
		valid:         make(map[string]arbengine.ValidityCacheEntry),
		priceResolver: priceResolver,
		persistent:    persistent,
		chain:         chain,
	}
}

// Resolve performs the four-tier lookup, caching the
// result in the in-memory map on any tier's success. A zero address with
// a nil error is never returned; callers treat a returned error as
// "opportunity unactionable; drop".
func (r *Registry) Resolve(ctx context.Context, shortID string, venue arbengine.VenueTag) (common.Address, error) {
	start := time.Now()

	r.mu.RLock()
	if info, ok := r.pools[shortID]; ok {
		r.mu.RUnlock()
		r.record(0, start)
		return info.FullAddress, nil
	}
	r.mu.RUnlock()

	if r.priceResolver != nil {
		addr, err := r.priceResolver.ResolvePool(ctx, shortID)
		if err == nil && addr != (common.Address{}) {
			r.cache(arbengine.PoolInfo{
				PoolShortID:  shortID,
				FullAddress:  addr,
				VenueTag:     venue,
				ResolvedAt:   time.Now(),
				ResolvedTier: arbengine.TierExternalAPI,
			})
			r.record(1, start)
			return addr, nil
		}
	}

	if info, ok, err := r.persistent.Lookup(ctx, shortID); err == nil && ok && info.FullAddress != (common.Address{}) {
		r.cache(info)
		r.record(2, start)
		return info.FullAddress, nil
	}

	if r.chain != nil {
		addr, err := r.chain.EnumeratePool(ctx, shortID, venue)
		if err != nil {
			return common.Address{}, fmt.Errorf("%w: %s: %w", arbengine.ErrResolutionMiss, shortID, err)
		}
		if addr == (common.Address{}) {
			return common.Address{}, fmt.Errorf("%w: %s: enumeration returned the zero address", arbengine.ErrResolutionMiss, shortID)
		}
		owner, err := r.chain.AccountOwner(ctx, addr)
		if err == nil && UnsupportedPrograms[owner] {
			return common.Address{}, fmt.Errorf("%w: pool %s owned by unsupported program %s", arbengine.ErrResolutionMiss, shortID, owner.Hex())
		}
		info := arbengine.PoolInfo{
			PoolShortID:  shortID,
			FullAddress:  addr,
			VenueTag:     venue,
			ResolvedAt:   time.Now(),
			ResolvedTier: arbengine.TierOnChain,
		}
		r.cache(info)
		_ = r.persistent.Store(ctx, info)
		r.record(3, start)
		return addr, nil
	}

	return common.Address{}, fmt.Errorf("%w: %s", arbengine.ErrResolutionMiss, shortID)
}

func (r *Registry) cache(info arbengine.PoolInfo) {
	r.mu.Lock()
	r.pools[info.PoolShortID] = info
	r.mu.Unlock()
}

func (r *Registry) record(tier int, start time.Time) {
	r.statsMu.Lock()
	r.stats[tier].Hits++
	r.stats[tier].CumulativeNs += time.Since(start).Nanoseconds()
	r.statsMu.Unlock()
}

// TierStats returns a point-in-time copy of the per-tier hit/latency
// counters, indexed by arbengine.ResolutionTier.
func (r *Registry) TierStats() [4]TierStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

// IsPoolValidCached returns the cached validity decision and whether it
// is present and within TTL. A caller observing (false, false) MUST call
// ValidateBatch before treating the pool as unactionable.
func (r *Registry) IsPoolValidCached(shortID string) (decision bool, present bool) {
	r.validMu.RLock()
	defer r.validMu.RUnlock()
	entry, ok := r.valid[shortID]
	if !ok || time.Since(entry.CheckedAt) > ValidityTTL {
		return false, false
	}
	return entry.IsValid, true
}

// ValidateBatch fetches on-chain account data for each id and marks it
// valid iff the data is non-empty and at least the venue family's
// minimum byte size. No network I/O happens under the validity lock.
func (r *Registry) ValidateBatch(ctx context.Context, ids []string, venue arbengine.VenueTag) error {
	if r.chain == nil {
		return fmt.Errorf("validate batch: no chain reader configured")
	}
	family := venue.Family()
	minSize := MinAccountSize[family]

	results := make(map[string]arbengine.ValidityCacheEntry, len(ids))
	for _, id := range ids {
		r.mu.RLock()
		info, known := r.pools[id]
		r.mu.RUnlock()
		if !known {
			results[id] = arbengine.ValidityCacheEntry{IsValid: false, CheckedAt: time.Now()}
			continue
		}
		data, err := r.chain.AccountData(ctx, info.FullAddress)
		valid := err == nil && len(data) > 0 && len(data) >= minSize
		results[id] = arbengine.ValidityCacheEntry{IsValid: valid, CheckedAt: time.Now()}
	}

	r.validMu.Lock()
	for id, entry := range results {
		r.valid[id] = entry
	}
	r.validMu.Unlock()
	return nil
}

// Info returns the cached PoolInfo for a short id, if any.
func (r *Registry) Info(shortID string) (arbengine.PoolInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.pools[shortID]
	return info, ok
}

// MostActive returns up to n short ids from the in-memory map, used by
// the background revalidator. No per-pool activity is tracked: the ids
// come in Go map iteration order, not ranked by use, and which n of them
// are returned is unspecified.
func (r *Registry) MostActive(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, n)
	for id := range r.pools {
		if len(out) >= n {
			break
		}
		out = append(out, id)
	}
	return out
}

// StartBackgroundValidator launches the periodic revalidation goroutine
// re-validating up to N cached pools, as chosen by MostActive, every
// 120s, exiting when ctx is cancelled or shutdown closes.
// The chosen ids are grouped by their own stored venue tag before
// validation, since they span arbitrarily many venue families.
func (r *Registry) StartBackgroundValidator(ctx context.Context, shutdown <-chan struct{}, topN int) {
	ticker := time.NewTicker(120 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		case <-ticker.C:
			r.revalidateTopN(ctx, topN)
		}
	}
}

func (r *Registry) revalidateTopN(ctx context.Context, topN int) {
	ids := r.MostActive(topN)
	if len(ids) == 0 {
		return
	}
	byVenue := make(map[arbengine.VenueTag][]string)
	r.mu.RLock()
	for _, id := range ids {
		if info, ok := r.pools[id]; ok {
			byVenue[info.VenueTag] = append(byVenue[info.VenueTag], id)
		}
	}
	r.mu.RUnlock()
	for venue, group := range byVenue {
		_ = r.ValidateBatch(ctx, group, venue)
	}
}
