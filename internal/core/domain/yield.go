package domain

import (
	"errors"
	"fmt"

	"yield-bnpl/pkg/checked"

	"github.com/shopspring/decimal"
)

// BasisPoints is the number of basis points in 100%.
const BasisPoints = 10_000

// DaysPerYear is the accrual year used to scale APY over a collateral horizon.
const DaysPerYear = 365

var (
	// ErrNoLiquidity is returned when the reserve reports an empty pool.
	ErrNoLiquidity = errors.New("reserve reports no liquidity")
	// ErrZeroAPY is returned when the derived deposit APY rounds down to zero.
	ErrZeroAPY = errors.New("derived deposit apy is zero")
	// ErrInvalidRates is returned when the reserve reports rates outside their domain.
	ErrInvalidRates = errors.New("reserve rates out of range")
)

var (
	decOne = decimal.NewFromInt(1)
	decBps = decimal.NewFromInt(BasisPoints)
)

// ReserveRates is a snapshot of the yield reserve's published rates. Rates are
// fractions (0.08 = 8%).
type ReserveRates struct {
	BorrowRate      decimal.Decimal `json:"borrow_rate"`
	Utilization     decimal.Decimal `json:"utilization"`
	TakeRate        decimal.Decimal `json:"take_rate"`
	AvailableAmount decimal.Decimal `json:"available_amount"`
	BorrowedAmount  decimal.Decimal `json:"borrowed_amount"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"` // underlying per receipt
}

// TotalLiquidity returns available plus borrowed liquidity.
func (r ReserveRates) TotalLiquidity() decimal.Decimal {
	return r.AvailableAmount.Add(r.BorrowedAmount)
}

// Validate checks that every rate lies in its domain.
func (r ReserveRates) Validate() error {
	switch {
	case r.BorrowRate.IsNegative():
		return fmt.Errorf("%w: borrow rate %s", ErrInvalidRates, r.BorrowRate)
	case r.Utilization.IsNegative() || r.Utilization.GreaterThan(decOne):
		return fmt.Errorf("%w: utilization %s", ErrInvalidRates, r.Utilization)
	case r.TakeRate.IsNegative() || r.TakeRate.GreaterThan(decOne):
		return fmt.Errorf("%w: take rate %s", ErrInvalidRates, r.TakeRate)
	case r.AvailableAmount.IsNegative() || r.BorrowedAmount.IsNegative():
		return fmt.Errorf("%w: negative liquidity", ErrInvalidRates)
	}
	return nil
}

// DepositAPYBps derives the depositor yield in basis points:
// floor(borrow_rate * utilization * (1 - take_rate) * 10000).
func DepositAPYBps(r ReserveRates) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	if !r.TotalLiquidity().IsPositive() {
		return 0, ErrNoLiquidity
	}

	apy := r.BorrowRate.
		Mul(r.Utilization).
		Mul(decOne.Sub(r.TakeRate)).
		Mul(decBps).
		Floor()

	if !apy.IsPositive() {
		return 0, ErrZeroAPY
	}
	if apy.GreaterThan(decimal.NewFromInt(BasisPoints * BasisPoints)) {
		return 0, fmt.Errorf("%w: apy %s bps", ErrInvalidRates, apy)
	}
	return apy.IntPart(), nil
}

// CollateralSizing is the result of sizing collateral for a purchase.
type CollateralSizing struct {
	BaseLocked int64
	Locked     int64
}

// SizeCollateral computes the principal whose yield over horizonDays at apyBps
// equals purchase, then adds bufferBps on top. With a 365 day horizon this is
// floor(purchase*10000/apy) and floor(base*(10000+buffer)/10000). All
// divisions round down.
func SizeCollateral(purchase, apyBps, bufferBps, horizonDays int64) (CollateralSizing, error) {
	if apyBps <= 0 {
		return CollateralSizing{}, ErrZeroAPY
	}
	if horizonDays <= 0 {
		return CollateralSizing{}, fmt.Errorf("collateral horizon must be positive, got %d", horizonDays)
	}

	divisor, err := checked.Mul(apyBps, horizonDays)
	if err != nil {
		return CollateralSizing{}, err
	}
	base, err := checked.MulDiv(purchase, BasisPoints*DaysPerYear, divisor)
	if err != nil {
		return CollateralSizing{}, err
	}

	factor, err := checked.Add(BasisPoints, bufferBps)
	if err != nil {
		return CollateralSizing{}, err
	}
	locked, err := checked.MulDiv(base, factor, BasisPoints)
	if err != nil {
		return CollateralSizing{}, err
	}

	return CollateralSizing{BaseLocked: base, Locked: locked}, nil
}
