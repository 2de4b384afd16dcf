package simulated

import (
	"context"
	"errors"
	"testing"

	"yield-bnpl/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserve_DefaultConfigYields800Bps(t *testing.T) {
	r := New(DefaultConfig())

	rates, err := r.Rates(context.Background())
	require.NoError(t, err)
	assert.True(t, rates.Utilization.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, rates.BorrowRate.Equal(decimal.RequireFromString("0.16")))

	apy, err := domain.DepositAPYBps(rates)
	require.NoError(t, err)
	assert.Equal(t, int64(800), apy)
}

func TestReserve_BorrowRateCurve(t *testing.T) {
	tests := []struct {
		name      string
		available int64
		borrowed  int64
		want      string
	}{
		{"idle pool", 100, 0, "0"},
		{"below kink", 75, 25, "0.08"},
		{"at kink", 50, 50, "0.16"},
		{"above kink", 25, 75, "0.33"},
		{"fully utilized", 0, 100, "0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Available, cfg.Borrowed = tt.available, tt.borrowed
			rates, err := New(cfg).Rates(context.Background())
			require.NoError(t, err)
			assert.True(t, rates.BorrowRate.Equal(decimal.RequireFromString(tt.want)), "got %s", rates.BorrowRate)
		})
	}
}

func TestReserve_DepositRedeemRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := New(DefaultConfig())

	receipts, err := r.Deposit(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), receipts)
	assert.Equal(t, int64(1000), r.OutstandingReceipts())

	r.SetExchangeRate(decimal.RequireFromString("1.05"))
	underlying, err := r.Redeem(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(525), underlying)
	assert.Equal(t, int64(500), r.OutstandingReceipts())
}

func TestReserve_RedeemRejections(t *testing.T) {
	ctx := context.Background()
	r := New(DefaultConfig())
	_, err := r.Deposit(ctx, 10)
	require.NoError(t, err)

	_, err = r.Redeem(ctx, 11)
	assert.ErrorIs(t, err, ErrInsufficientReceipts)

	_, err = r.Redeem(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	r.SetLiquidity(5, 0)
	_, err = r.Redeem(ctx, 10)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestReserve_FailNext(t *testing.T) {
	ctx := context.Background()
	r := New(DefaultConfig())
	boom := errors.New("rpc unavailable")

	r.FailNext(boom)
	_, err := r.Rates(ctx)
	assert.ErrorIs(t, err, boom)

	_, err = r.Rates(ctx)
	assert.NoError(t, err, "failure is one-shot")
}

func TestReserve_OwnPositionDoesNotMoveRates(t *testing.T) {
	ctx := context.Background()
	r := New(DefaultConfig())

	before, err := r.Rates(ctx)
	require.NoError(t, err)
	_, err = r.Deposit(ctx, 50_000)
	require.NoError(t, err)
	_, err = r.Redeem(ctx, 20_000)
	require.NoError(t, err)
	after, err := r.Rates(ctx)
	require.NoError(t, err)

	assert.True(t, before.Utilization.Equal(after.Utilization))
	assert.True(t, before.BorrowRate.Equal(after.BorrowRate))
}
