package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"arbengine"
)

// httpBundleTransport posts a bundle to an external priority-inclusion
// relay over plain HTTP. The relay's wire format
// (send_bundle([signed_tx]) -> bundle_id) is a private contract between
// a deployment and its relay, so only the JSON envelope shape is fixed
// here; it follows priceclient's net/http pattern rather than pulling
// in a dependency for a single POST call.
type httpBundleTransport struct {
	url    string
	http   *http.Client
	isFallback bool
}

func newHTTPBundleTransport(url string, isFallback bool) *httpBundleTransport {
	timeout := 5 * time.Second
	if isFallback {
		timeout = 10 * time.Second
	}
	return &httpBundleTransport{
		url:        url,
		http:       &http.Client{Timeout: timeout},
		isFallback: isFallback,
	}
}

type submitRequest struct {
	Transactions []string `json:"transactions"` // base64-encoded
	Description  string   `json:"description"`
}

type submitResponse struct {
	BundleID string `json:"bundle_id"`
	Status   string `json:"status"`
}

func (t *httpBundleTransport) Submit(ctx context.Context, b arbengine.Bundle) (arbengine.BundleOutcome, error) {
	req := submitRequest{Description: b.Description}
	for _, tx := range b.Transactions {
		req.Transactions = append(req.Transactions, base64.StdEncoding.EncodeToString(tx))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return arbengine.BundleUnknown, fmt.Errorf("transport: encode bundle: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url+"/submit", bytes.NewReader(body))
	if err != nil {
		return arbengine.BundleUnknown, fmt.Errorf("transport: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(httpReq)
	if err != nil {
		return arbengine.BundleUnknown, fmt.Errorf("transport: submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		// Rate-limited submissions are distinguished for telemetry but are
		// still a permanent drop for this bundle.
		return arbengine.BundleFailed, fmt.Errorf("transport: submit rate-limited: %w", arbengine.ErrSubmissionFailed)
	}
	if resp.StatusCode != http.StatusOK {
		return arbengine.BundleFailed, fmt.Errorf("transport: submit: status %d", resp.StatusCode)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return arbengine.BundleUnknown, fmt.Errorf("transport: decode response: %w", err)
	}

	switch out.Status {
	case "landed":
		return arbengine.BundleLanded, nil
	case "failed":
		return arbengine.BundleFailed, fmt.Errorf("transport: relay reported failure for %s", out.BundleID)
	default:
		return arbengine.BundleUnknown, nil
	}
}
