// Package coinglass is a minimal client for the Coinglass Hyperliquid whale endpoints.
package coinglass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	whalePositionPath = "/api/hyperliquid/whale-position"
	whaleAlertPath    = "/api/hyperliquid/whale-alert"
)

// Client represents Coinglass API client
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Coinglass client
func NewClient(apiURL, apiKey string) *Client {
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// APIError is returned when Coinglass answers with a non-success status or code
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coinglass API error (status %d): %s", e.StatusCode, e.Message)
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// WhalePosition is an open Hyperliquid whale position
type WhalePosition struct {
	User             string  `json:"user"`
	Symbol           string  `json:"symbol"`
	PositionSize     float64 `json:"position_size"`
	EntryPrice       float64 `json:"entry_price"`
	MarkPrice        float64 `json:"mark_price"`
	LiqPrice         float64 `json:"liq_price"`
	Leverage         float64 `json:"leverage"`
	MarginBalance    float64 `json:"margin_balance"`
	PositionValueUSD float64 `json:"position_value_usd"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	FundingFee       float64 `json:"funding_fee"`
	MarginMode       string  `json:"margin_mode"`
	CreateTime       int64   `json:"create_time"`
	UpdateTime       int64   `json:"update_time"`
}

// WhaleAlert is a large position open/close event
type WhaleAlert struct {
	User             string  `json:"user"`
	Symbol           string  `json:"symbol"`
	PositionSize     float64 `json:"position_size"`
	EntryPrice       float64 `json:"entry_price"`
	LiqPrice         float64 `json:"liq_price"`
	PositionValueUSD float64 `json:"position_value_usd"`
	PositionAction   int     `json:"position_action"` // 1 open, 2 close
	CreateTime       int64   `json:"create_time"`
}

// GetWhalePositions returns current whale positions held by address
func (c *Client) GetWhalePositions(ctx context.Context, address string) ([]WhalePosition, error) {
	var all []WhalePosition
	if err := c.get(ctx, whalePositionPath, &all); err != nil {
		return nil, err
	}

	out := make([]WhalePosition, 0, len(all))
	for _, p := range all {
		if strings.EqualFold(p.User, address) {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetWhaleAlerts returns recent whale alerts for address
func (c *Client) GetWhaleAlerts(ctx context.Context, address string) ([]WhaleAlert, error) {
	var all []WhaleAlert
	if err := c.get(ctx, whaleAlertPath, &all); err != nil {
		return nil, err
	}

	out := make([]WhaleAlert, 0, len(all))
	for _, a := range all {
		if strings.EqualFold(a.User, address) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("CG-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{StatusCode: http.StatusBadGateway, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if env.Code != "0" {
		return &APIError{StatusCode: http.StatusBadGateway, Message: env.Msg}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}

	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("failed to parse data: %w", err)
	}
	return nil
}
