// Package simulated is an in-process yield reserve with a kinked borrow-rate
// curve. It backs the memory storage driver and the test suites.
//
// Published rates come from the configured market liquidity only; the
// protocol's own position is treated as too small to move utilization.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"yield-bnpl/internal/core/domain"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientReceipts  = errors.New("simulated reserve: redeem exceeds outstanding receipts")
	ErrInsufficientLiquidity = errors.New("simulated reserve: not enough available liquidity")
	ErrInvalidAmount         = errors.New("simulated reserve: amount must be positive")
)

// Config describes the reserve's rate model and starting liquidity. Rates are
// fractions.
type Config struct {
	MinBorrowRate      decimal.Decimal
	OptimalUtilization decimal.Decimal
	OptimalBorrowRate  decimal.Decimal
	MaxBorrowRate      decimal.Decimal
	TakeRate           decimal.Decimal
	Available          int64
	Borrowed           int64
	ExchangeRate       decimal.Decimal // underlying per receipt; zero means 1
}

// DefaultConfig yields a deposit APY of 800 bps at 50% utilization.
func DefaultConfig() Config {
	return Config{
		MinBorrowRate:      decimal.Zero,
		OptimalUtilization: decimal.RequireFromString("0.5"),
		OptimalBorrowRate:  decimal.RequireFromString("0.16"),
		MaxBorrowRate:      decimal.RequireFromString("0.5"),
		TakeRate:           decimal.Zero,
		Available:          1_000_000,
		Borrowed:           1_000_000,
		ExchangeRate:       decimal.NewFromInt(1),
	}
}

// Reserve is safe for concurrent use.
type Reserve struct {
	mu       sync.Mutex
	cfg      Config
	receipts int64 // outstanding receipts minted to depositors
	failNext error
}

// New creates a simulated reserve.
func New(cfg Config) *Reserve {
	if cfg.ExchangeRate.IsZero() {
		cfg.ExchangeRate = decimal.NewFromInt(1)
	}
	return &Reserve{cfg: cfg}
}

// Deposit mints receipts for amount at the current exchange rate.
func (r *Reserve) Deposit(ctx context.Context, amount int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.takeFailure(ctx); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	receipts := decimal.NewFromInt(amount).Div(r.cfg.ExchangeRate).Floor().IntPart()
	r.receipts += receipts
	return receipts, nil
}

// Redeem burns receipts and releases underlying at the current exchange rate.
func (r *Reserve) Redeem(ctx context.Context, receipts int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.takeFailure(ctx); err != nil {
		return 0, err
	}
	if receipts <= 0 {
		return 0, ErrInvalidAmount
	}
	if receipts > r.receipts {
		return 0, fmt.Errorf("%w: %d > %d", ErrInsufficientReceipts, receipts, r.receipts)
	}

	underlying := decimal.NewFromInt(receipts).Mul(r.cfg.ExchangeRate).Floor().IntPart()
	if underlying > r.cfg.Available {
		return 0, fmt.Errorf("%w: %d > %d", ErrInsufficientLiquidity, underlying, r.cfg.Available)
	}
	r.receipts -= receipts
	return underlying, nil
}

// Rates reports the current borrow rate from the utilization curve.
func (r *Reserve) Rates(ctx context.Context) (domain.ReserveRates, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.takeFailure(ctx); err != nil {
		return domain.ReserveRates{}, err
	}

	available := decimal.NewFromInt(r.cfg.Available)
	borrowed := decimal.NewFromInt(r.cfg.Borrowed)
	util := decimal.Zero
	if total := available.Add(borrowed); total.IsPositive() {
		util = borrowed.Div(total)
	}

	return domain.ReserveRates{
		BorrowRate:      r.borrowRate(util),
		Utilization:     util,
		TakeRate:        r.cfg.TakeRate,
		AvailableAmount: available,
		BorrowedAmount:  borrowed,
		ExchangeRate:    r.cfg.ExchangeRate,
	}, nil
}

func (r *Reserve) borrowRate(util decimal.Decimal) decimal.Decimal {
	c := r.cfg
	if c.OptimalUtilization.IsZero() || util.LessThan(c.OptimalUtilization) {
		if c.OptimalUtilization.IsZero() {
			return c.OptimalBorrowRate
		}
		span := c.OptimalBorrowRate.Sub(c.MinBorrowRate)
		return c.MinBorrowRate.Add(util.Div(c.OptimalUtilization).Mul(span))
	}

	headroom := decimal.NewFromInt(1).Sub(c.OptimalUtilization)
	if !headroom.IsPositive() {
		return c.OptimalBorrowRate
	}
	span := c.MaxBorrowRate.Sub(c.OptimalBorrowRate)
	return c.OptimalBorrowRate.Add(util.Sub(c.OptimalUtilization).Div(headroom).Mul(span))
}

// SetExchangeRate changes the underlying paid per receipt. Raising it models
// accrued interest.
func (r *Reserve) SetExchangeRate(rate decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.ExchangeRate = rate
}

// SetLiquidity replaces available and borrowed liquidity.
func (r *Reserve) SetLiquidity(available, borrowed int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.Available = available
	r.cfg.Borrowed = borrowed
}

// FailNext makes the next call return err.
func (r *Reserve) FailNext(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

// OutstandingReceipts returns the receipts currently minted.
func (r *Reserve) OutstandingReceipts() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.receipts
}

// Ping implements ports.HealthChecker.
func (r *Reserve) Ping(ctx context.Context) error { return ctx.Err() }

// Name implements ports.HealthChecker.
func (r *Reserve) Name() string { return "reserve" }

func (r *Reserve) takeFailure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.failNext; err != nil {
		r.failNext = nil
		return err
	}
	return nil
}
