// Package backend talks to the remote trading service that executes trades,
// stores the authoritative portfolio and publishes market prices.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gw/tradedesk/internal/prices"
	"github.com/shopspring/decimal"
)

type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewClient returns a client for the API rooted at baseURL. token is sent as
// a bearer credential and may be empty for Login and Register.
func NewClient(baseURL, token string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// --- API Methods ---

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var result struct {
		AccessToken string `json:"access_token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.post(ctx, "/login", body, &result); err != nil {
		return "", err
	}
	return result.AccessToken, nil
}

// Register creates an account and returns its bearer token.
func (c *Client) Register(ctx context.Context, username, email, password string) (string, error) {
	var result struct {
		AccessToken string `json:"access_token"`
	}
	body := map[string]string{"username": username, "email": email, "password": password}
	if err := c.post(ctx, "/register", body, &result); err != nil {
		return "", err
	}
	return result.AccessToken, nil
}

func (c *Client) Portfolio(ctx context.Context) (*State, error) {
	var st State
	if err := c.get(ctx, "/portfolio", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Buy(ctx context.Context, symbol string, quantity decimal.Decimal) (*State, error) {
	return c.trade(ctx, "/buy", symbol, quantity)
}

func (c *Client) Sell(ctx context.Context, symbol string, quantity decimal.Decimal) (*State, error) {
	return c.trade(ctx, "/sell", symbol, quantity)
}

func (c *Client) trade(ctx context.Context, path, symbol string, quantity decimal.Decimal) (*State, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrInvalidSymbol)
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, quantity)
	}

	body := struct {
		Symbol   string      `json:"symbol"`
		Quantity json.Number `json:"quantity"`
	}{Symbol: symbol, Quantity: json.Number(quantity.String())}

	var st State
	if err := c.post(ctx, path, body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Prices fetches the current price row. Entries that are not positive
// numbers, such as a date column, are skipped.
func (c *Client) Prices(ctx context.Context) (*prices.Snapshot, error) {
	var result struct {
		Prices    map[string]json.RawMessage `json:"prices"`
		Timestamp json.RawMessage            `json:"timestamp"`
	}
	if err := c.get(ctx, "/stock_prices", &result); err != nil {
		return nil, err
	}

	parsed := make(map[string]decimal.Decimal, len(result.Prices))
	for symbol, raw := range result.Prices {
		var p decimal.Decimal
		if err := p.UnmarshalJSON(raw); err != nil {
			slog.Debug("skipping price", "symbol", symbol, "raw", string(raw))
			continue
		}
		parsed[symbol] = p
	}
	return prices.NewSnapshot(parsed, parseTimestamp(result.Timestamp)), nil
}

// parseTimestamp reads epoch seconds, falling back to now when the feed has
// not set one yet.
func parseTimestamp(raw json.RawMessage) time.Time {
	var ts decimal.Decimal
	if err := ts.UnmarshalJSON(raw); err != nil || !ts.IsPositive() {
		return time.Now().UTC()
	}
	secs := ts.Floor()
	return time.Unix(secs.IntPart(), ts.Sub(secs).Shift(9).IntPart()).UTC()
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.doRequest(req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doRequest(req, out)
}

func (c *Client) doRequest(req *http.Request, out any) error {
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	slog.Debug("trade API request", "method", req.Method, "url", req.URL.String(), "request_id", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("trade API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := errorMessage(body)
		slog.Warn("trade API error", "status", resp.StatusCode, "message", msg, "request_id", reqID)
		return &RemoteError{Status: resp.StatusCode, Message: msg, Kind: classify(resp.StatusCode, msg)}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w (body: %s)", err, string(body))
		}
	}
	return nil
}

// errorMessage pulls the human-readable text out of an error body. The
// backend uses "error" on some routes and "message" (or "msg") on others.
func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		switch {
		case e.Error != "":
			return e.Error
		case e.Message != "":
			return e.Message
		case e.Msg != "":
			return e.Msg
		}
	}
	return strings.TrimSpace(string(body))
}
