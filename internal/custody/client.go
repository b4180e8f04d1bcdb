// Package custody is the HTTP client for the custody service that holds the
// ledger's funds and performs value transfers on its behalf.
package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
	"github.com/josh-kwaku/payment-ledger/internal/logging"
)

const DefaultTimeout = 5 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type TransferRequest struct {
	Reference string         `json:"reference"`
	To        domain.Account `json:"to"`
	Amount    uint64         `json:"amount"`
}

type TransferResponse struct {
	TransferID string `json:"transfer_id"`
	Replayed   bool   `json:"replayed,omitempty"`
}

// Transfer asks custody to move amount to the recipient. Custody performs a
// reference at most once and answers repeats with the original result.
// A 4xx status means the transfer did not happen. Transport errors and 5xx
// leave the outcome unknown and wrap domain.ErrTransferOutcomeUnknown.
func (c *Client) Transfer(ctx context.Context, reference string, to domain.Account, amount uint64) error {
	log := logging.FromContext(ctx).With("transfer_reference", reference)

	body, err := json.Marshal(TransferRequest{Reference: reference, To: to, Amount: amount})
	if err != nil {
		return fmt.Errorf("Transfer: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Transfer: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", reference)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("Transfer: send: %w: %w", domain.ErrTransferOutcomeUnknown, err)
	}
	defer resp.Body.Close()

	log.Info("custody response received",
		"status", resp.StatusCode,
		"recipient", to,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= http.StatusInternalServerError {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Transfer: status %d: %w: %s", resp.StatusCode, domain.ErrTransferOutcomeUnknown, bytes.TrimSpace(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Transfer: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var out TransferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err == nil && out.TransferID != "" {
		log.Debug("custody transfer id", "transfer_id", out.TransferID, "replayed", out.Replayed)
	}
	return nil
}
