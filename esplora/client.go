// Package esplora talks to an Esplora-compatible HTTP API (mempool.space,
// blockstream.info) for UTXO listing, fee estimation and broadcast.
package esplora

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dan/btc-payout/wallet"
)

const requestTimeout = 30 * time.Second

// DefaultBaseURL returns the public mempool.space endpoint for a network.
func DefaultBaseURL(network string) string {
	switch network {
	case "testnet4":
		return "https://mempool.space/testnet4/api"
	case "signet":
		return "https://mempool.space/signet/api"
	default:
		return "https://mempool.space/api"
	}
}

// Client is a thin Esplora REST client. One instance serves a whole run;
// every call is a blocking round-trip.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given API base URL, e.g.
// "https://mempool.space/testnet4/api".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
	}
}

type utxoResponse struct {
	TxID  string `json:"txid"`
	Vout  uint32 `json:"vout"`
	Value int64  `json:"value"`
}

type addressResponse struct {
	ChainStats struct {
		FundedSum int64 `json:"funded_txo_sum"`
		SpentSum  int64 `json:"spent_txo_sum"`
	} `json:"chain_stats"`
}

type feeResponse struct {
	FastestFee  int64 `json:"fastestFee"`
	HalfHourFee int64 `json:"halfHourFee"`
	HourFee     int64 `json:"hourFee"`
	MinimumFee  int64 `json:"minimumFee"`
}

// ListUnspent returns the unspent outputs of an address in the order the
// backend reports them.
func (c *Client) ListUnspent(ctx context.Context, address string) ([]wallet.UTXO, error) {
	body, err := c.get(ctx, "/address/"+address+"/utxo")
	if err != nil {
		return nil, err
	}

	var raw []utxoResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse UTXOs: %w", err)
	}

	utxos := make([]wallet.UTXO, len(raw))
	for i, u := range raw {
		utxos[i] = wallet.UTXO{TxID: u.TxID, Vout: u.Vout, Value: u.Value}
	}
	return utxos, nil
}

// Balance returns the confirmed balance of an address in satoshis.
func (c *Client) Balance(ctx context.Context, address string) (int64, error) {
	body, err := c.get(ctx, "/address/"+address)
	if err != nil {
		return 0, err
	}

	var resp addressResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to parse address stats: %w", err)
	}

	return resp.ChainStats.FundedSum - resp.ChainStats.SpentSum, nil
}

// RawTransaction returns the serialized hex of a transaction. Needed for
// legacy inputs, which are signed over the whole referenced transaction.
func (c *Client) RawTransaction(ctx context.Context, txid string) (string, error) {
	body, err := c.get(ctx, "/tx/"+txid+"/hex")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// FeeRate returns the recommended fee rate in satoshis per vbyte, never
// below 1.
func (c *Client) FeeRate(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, "/v1/fees/recommended")
	if err != nil {
		return 0, err
	}

	var resp feeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to parse fee estimate: %w", err)
	}

	rate := resp.HalfHourFee
	if rate < 1 {
		rate = 1
	}
	return rate, nil
}

// Broadcast submits a signed transaction and returns the txid reported by
// the backend. Best effort, single attempt.
func (c *Client) Broadcast(ctx context.Context, txHex string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx", strings.NewReader(txHex))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("broadcast request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read broadcast response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("broadcast rejected (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return strings.TrimSpace(string(body)), nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response for %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}
