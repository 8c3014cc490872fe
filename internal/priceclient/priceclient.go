// Package priceclient implements the HTTP collaborator for the external
// price publisher: price-table fetch, short-id pool resolution, and the
// tip-floor percentile feed.
package priceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"arbengine"

	"github.com/ethereum/go-ethereum/common"
)

// Client implements both feed.Publisher and registry.PriceResolver
// against a single base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client with a bounded-timeout http.Client.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 2 * time.Second},
	}
}

type wirePrice struct {
	PoolShortID string `json:"pool_short_id"`
	PoolAddress string `json:"pool_address"`
	VenueTag    string `json:"venue_tag"`
	TokenMint   string `json:"token_mint"`
	PriceNum    string `json:"price_num"`
	PriceDenom  string `json:"price_denom"`
	Liquidity   string `json:"liquidity"`
	Volume24h   string `json:"volume_24h"`
}

// Fetch implements feed.Publisher by GETting /prices and decoding the
// wire format into PriceSnapshots.
func (c *Client) Fetch(ctx context.Context) ([]arbengine.PriceSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/prices", nil)
	if err != nil {
		return nil, fmt.Errorf("priceclient: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("priceclient: fetch prices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("priceclient: fetch prices: status %d", resp.StatusCode)
	}

	var wire []wirePrice
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("priceclient: decode prices: %w", err)
	}

	now := time.Now()
	out := make([]arbengine.PriceSnapshot, 0, len(wire))
	for _, w := range wire {
		num, ok := new(big.Int).SetString(w.PriceNum, 10)
		if !ok {
			continue
		}
		denom, ok := new(big.Int).SetString(w.PriceDenom, 10)
		if !ok || denom.Sign() == 0 {
			continue
		}
		liquidity, _ := new(big.Int).SetString(w.Liquidity, 10)
		volume, _ := new(big.Int).SetString(w.Volume24h, 10)

		out = append(out, arbengine.PriceSnapshot{
			PoolShortID: w.PoolShortID,
			PoolAddress: common.HexToAddress(w.PoolAddress),
			VenueTag:    arbengine.VenueTag(w.VenueTag),
			TokenMint:   common.HexToAddress(w.TokenMint),
			PriceInBase: new(big.Rat).SetFrac(num, denom),
			Liquidity:   liquidity,
			Volume24h:   volume,
			ObservedAt:  now,
		})
	}
	return out, nil
}

type wireResolve struct {
	Address string `json:"address"`
}

// ResolvePool implements registry.PriceResolver's tier-2 lookup by
// GETting /resolve?short_id=....
func (c *Client) ResolvePool(ctx context.Context, shortID string) (common.Address, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/resolve?short_id="+shortID, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("priceclient: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return common.Address{}, fmt.Errorf("priceclient: resolve %s: %w", shortID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return common.Address{}, fmt.Errorf("%w: %s", arbengine.ErrResolutionMiss, shortID)
	}

	var w wireResolve
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return common.Address{}, fmt.Errorf("priceclient: decode resolve %s: %w", shortID, err)
	}
	return common.HexToAddress(w.Address), nil
}

// FetchTipPercentiles implements tipfloor.Source by GETting /tip-floor.
func (c *Client) FetchTipPercentiles(ctx context.Context) (p95, p99 *big.Int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tip-floor", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("priceclient: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("priceclient: fetch tip floor: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("priceclient: fetch tip floor: status %d", resp.StatusCode)
	}

	var wire struct {
		P95 string `json:"p95"`
		P99 string `json:"p99"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, nil, fmt.Errorf("priceclient: decode tip floor: %w", err)
	}
	p95v, ok := new(big.Int).SetString(wire.P95, 10)
	if !ok {
		return nil, nil, fmt.Errorf("priceclient: invalid p95 %q", wire.P95)
	}
	p99v, ok := new(big.Int).SetString(wire.P99, 10)
	if !ok {
		return nil, nil, fmt.Errorf("priceclient: invalid p99 %q", wire.P99)
	}
	return p95v, p99v, nil
}
