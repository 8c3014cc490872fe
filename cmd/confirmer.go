package main

import (
	"context"

	"arbengine"
	"arbengine/pkg/txlistener"
)

// signatureConfirmer verifies bundle landing through transaction-receipt
// polling via pkg/txlistener, the authoritative confirmation path; the
// relay's own bundle-status report is treated as advisory telemetry only.
type signatureConfirmer struct {
	listener *txlistener.TxListener
}

func (c signatureConfirmer) Confirm(ctx context.Context, b arbengine.Bundle) (arbengine.BundleOutcome, error) {
	receipt, err := c.listener.WaitForTransactionCtx(ctx, b.Signature)
	if err != nil {
		return arbengine.BundleUnknown, err
	}
	if receipt.Status == "0x1" {
		return arbengine.BundleLanded, nil
	}
	return arbengine.BundleFailed, nil
}
