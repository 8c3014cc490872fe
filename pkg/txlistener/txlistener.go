// Package txlistener polls for transaction confirmation, the
// authoritative landing check; relay bundle-status reports are treated
// as advisory only.
package txlistener

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Receipt is a human-legible summary of a confirmed transaction, with
// numeric fields rendered as 0x-prefixed hex to match on-chain RPC
// conventions.
type Receipt struct {
	BlockNumber string
	GasUsed     string
	Status      string // "0x1" success, "0x0" failure
}

// TxListener polls an RPC endpoint until a transaction confirms or the
// configured timeout elapses.
type TxListener struct {
	client       *ethclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// Option configures a TxListener.
type Option func(*TxListener)

// WithPollInterval sets the interval between confirmation polls.
func WithPollInterval(d time.Duration) Option {
	return func(tl *TxListener) { tl.pollInterval = d }
}

// WithTimeout sets the maximum time to wait for confirmation.
func WithTimeout(d time.Duration) Option {
	return func(tl *TxListener) { tl.timeout = d }
}

// NewTxListener constructs a TxListener with sane defaults, overridable
// via options.
func NewTxListener(client *ethclient.Client, opts ...Option) *TxListener {
	tl := &TxListener{
		client:       client,
		pollInterval: 2 * time.Second,
		timeout:      2 * time.Minute,
	}
	for _, opt := range opts {
		opt(tl)
	}
	return tl
}

// WaitForTransaction polls until txHash confirms or the listener's
// timeout elapses, whichever comes first.
func (tl *TxListener) WaitForTransaction(txHash common.Hash) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), tl.timeout)
	defer cancel()
	return tl.WaitForTransactionCtx(ctx, txHash)
}

// WaitForTransactionCtx is WaitForTransaction with caller-supplied context,
// used so the engine's shutdown channel can cancel an in-flight wait.
func (tl *TxListener) WaitForTransactionCtx(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	ticker := time.NewTicker(tl.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := tl.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return &Receipt{
				BlockNumber: fmt.Sprintf("0x%x", receipt.BlockNumber),
				GasUsed:     fmt.Sprintf("0x%x", receipt.GasUsed),
				Status:      fmt.Sprintf("0x%x", receipt.Status),
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for transaction %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
			continue
		}
	}
}
