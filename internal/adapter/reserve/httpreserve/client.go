// Package httpreserve talks to a yield reserve that exposes a JSON API:
//
//	POST /v1/deposit  {"amount": "1000"}   -> {"receipts": "952"}
//	POST /v1/redeem   {"receipts": "952"}  -> {"amount": "1000"}
//	GET  /v1/rates                         -> {"borrow_rate": "0.16", ...}
//	GET  /v1/health                        -> 2xx when serving
//
// Quantities travel as decimal strings and must be whole units.
package httpreserve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"yield-bnpl/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrMalformedAmount is returned when the reserve answers with a quantity
// that is negative, fractional or does not fit int64.
var ErrMalformedAmount = errors.New("reserve returned a malformed amount")

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the reserve endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements ports.YieldReserve and ports.HealthChecker.
type Client struct {
	baseURL string
	apiKey  string
	http    Doer
}

// New builds a client. A nil doer gets an *http.Client with cfg.Timeout
// (10s when unset).
func New(cfg Config, doer Doer) *Client {
	if doer == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		doer = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    doer,
	}
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type depositResponse struct {
	Receipts decimal.Decimal `json:"receipts"`
}

type redeemRequest struct {
	Receipts decimal.Decimal `json:"receipts"`
}

type redeemResponse struct {
	Amount decimal.Decimal `json:"amount"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Deposit moves amount into the reserve and returns the receipts minted.
func (c *Client) Deposit(ctx context.Context, amount int64) (int64, error) {
	var out depositResponse
	if err := c.do(ctx, http.MethodPost, "/v1/deposit", depositRequest{Amount: decimal.NewFromInt(amount)}, &out); err != nil {
		return 0, err
	}
	return wholeUnits(out.Receipts)
}

// Redeem burns receipts and returns the underlying released.
func (c *Client) Redeem(ctx context.Context, receipts int64) (int64, error) {
	var out redeemResponse
	if err := c.do(ctx, http.MethodPost, "/v1/redeem", redeemRequest{Receipts: decimal.NewFromInt(receipts)}, &out); err != nil {
		return 0, err
	}
	return wholeUnits(out.Amount)
}

// Rates fetches the reserve's published rates.
func (c *Client) Rates(ctx context.Context) (domain.ReserveRates, error) {
	var out domain.ReserveRates
	if err := c.do(ctx, http.MethodGet, "/v1/rates", nil, &out); err != nil {
		return domain.ReserveRates{}, err
	}
	if out.ExchangeRate.IsZero() {
		out.ExchangeRate = decimal.NewFromInt(1)
	}
	return out, nil
}

// Ping checks the reserve's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/health", nil, nil)
}

func (c *Client) Name() string {
	return "reserve"
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode reserve %s request: %w", path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build reserve %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reserve %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("reserve %s failed: status=%d: %s", path, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("reserve %s failed: status=%d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode reserve %s response: %w", path, err)
	}
	return nil
}

func wholeUnits(d decimal.Decimal) (int64, error) {
	if d.IsNegative() || !d.Equal(d.Truncate(0)) || d.GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%w: %s", ErrMalformedAmount, d)
	}
	return d.IntPart(), nil
}
