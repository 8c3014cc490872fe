// Package feed implements the price feed client: it polls an external
// price publisher and maintains the latest PriceSnapshot for every
// (token_mint, venue_tag, pool_short_id) key.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arbengine"
)

// fetchTimeout bounds every external publisher round-trip; each call
// carries its own deadline rather than sharing an ambient one.
const fetchTimeout = 500 * time.Millisecond

// Publisher is the external price source. A single Fetch call returns
// every snapshot currently known to the publisher; the client is
// responsible for merging that into its own table.
type Publisher interface {
	Fetch(ctx context.Context) ([]arbengine.PriceSnapshot, error)
}

// Client polls a Publisher on an interval and exposes a point-in-time
// snapshot of the price table under a read-write mutex, the same shape
// the registry and tip-floor monitor use for their shared state.
type Client struct {
	publisher Publisher
	interval  time.Duration

	mu     sync.RWMutex
	table  map[arbengine.PriceKey]arbengine.PriceSnapshot
	errors int
}

// New constructs a Client that polls publisher every interval.
func New(publisher Publisher, interval time.Duration) *Client {
	return &Client{
		publisher: publisher,
		interval:  interval,
		table:     make(map[arbengine.PriceKey]arbengine.PriceSnapshot),
	}
}

// Run polls the publisher until ctx is done or shutdown is closed,
// merging every successful fetch into the table. It never returns an
// error itself; a failed poll increments the counter ErrorCount reports,
// so the scan loop can track feed health without the client owning a
// logger.
func (c *Client) Run(ctx context.Context, shutdown <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		case <-ticker.C:
			_, _ = c.fetch(ctx)
		}
	}
}

// fetch performs one bounded publisher round-trip and merges the result
// into the table, returning the number of entries refreshed.
func (c *Client) fetch(ctx context.Context) (int, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	snapshots, err := c.publisher.Fetch(fetchCtx)
	if err != nil {
		c.mu.Lock()
		c.errors++
		c.mu.Unlock()
		return 0, fmt.Errorf("price feed fetch: %w", err)
	}

	c.mu.Lock()
	for _, s := range snapshots {
		c.table[s.Key()] = s
	}
	c.mu.Unlock()
	return len(snapshots), nil
}

// Fetch exposes a single on-demand poll for callers (e.g. tests, or a
// manual refresh endpoint) that don't want to wait for the next tick.
func (c *Client) Fetch(ctx context.Context) (int, error) {
	return c.fetch(ctx)
}

// snapshot returns a defensive copy of the full price table, the data
// the opportunity detector consumes on every scan iteration.
func (c *Client) snapshot() []arbengine.PriceSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]arbengine.PriceSnapshot, 0, len(c.table))
	for _, v := range c.table {
		out = append(out, v)
	}
	return out
}

// Snapshot is the exported form of snapshot, used by the execution
// engine's scan loop.
func (c *Client) Snapshot() []arbengine.PriceSnapshot {
	return c.snapshot()
}

// ErrorCount reports how many publisher fetches have failed since
// startup, for the metrics/reporting component.
func (c *Client) ErrorCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errors
}

// Len reports the current table size.
func (c *Client) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.table)
}
