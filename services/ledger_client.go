// services/ledger_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// AccountLedger credits token payouts to the external economy service. One
// credit is applied per non-zero reward entry after a battle finishes; on
// cancellation of a fee-bearing deployment the same call reverses entry fees
// (this deployment charges none, so cancellation is a no-op).
type AccountLedger interface {
	Credit(ctx context.Context, userID string, amount float64, reason string) error
}

// EconomyLedgerClient talks to the economy service's internal credit endpoint.
type EconomyLedgerClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewEconomyLedgerClient() *EconomyLedgerClient {
	baseURL := os.Getenv("ECONOMY_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("ECONOMY_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("BATTLE_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("BATTLE_SERVICE_TOKEN environment variable is required for ledger credits")
	}

	return &EconomyLedgerClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *EconomyLedgerClient) Credit(ctx context.Context, userID string, amount float64, reason string) error {
	payload, err := json.Marshal(map[string]any{
		"user_id": userID,
		"amount":  amount,
		"reason":  reason,
	})
	if err != nil {
		return fmt.Errorf("failed to encode credit payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/internal/credits", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create credit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call economy service: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("economy service returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
