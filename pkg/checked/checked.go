// Package checked provides overflow-checked arithmetic over non-negative
// int64 token amounts. Intermediates are held in 256 bits so a product that
// is later divided back into range does not fail spuriously.
package checked

import (
	"errors"
	"math"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow  = errors.New("checked: result overflows int64")
	ErrUnderflow = errors.New("checked: result is negative")
	ErrNegative  = errors.New("checked: negative operand")
	ErrDivByZero = errors.New("checked: division by zero")

	maxAmount = uint256.NewInt(math.MaxInt64)
)

func toU256(v int64) (*uint256.Int, error) {
	if v < 0 {
		return nil, ErrNegative
	}
	return uint256.NewInt(uint64(v)), nil
}

func fromU256(v *uint256.Int) (int64, error) {
	if v.Gt(maxAmount) {
		return 0, ErrOverflow
	}
	return int64(v.Uint64()), nil
}

func operands(a, b int64) (*uint256.Int, *uint256.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

// Add returns a+b.
func Add(a, b int64) (int64, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return 0, err
	}
	return fromU256(new(uint256.Int).Add(x, y))
}

// Sub returns a-b and fails when b > a.
func Sub(a, b int64) (int64, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return 0, err
	}
	if y.Gt(x) {
		return 0, ErrUnderflow
	}
	return fromU256(new(uint256.Int).Sub(x, y))
}

// Mul returns a*b.
func Mul(a, b int64) (int64, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return 0, err
	}
	return fromU256(new(uint256.Int).Mul(x, y))
}

// Div returns floor(a/b).
func Div(a, b int64) (int64, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return 0, err
	}
	if y.IsZero() {
		return 0, ErrDivByZero
	}
	return fromU256(new(uint256.Int).Div(x, y))
}

// MulDiv returns floor(a*b/c) without overflowing on the intermediate product.
func MulDiv(a, b, c int64) (int64, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return 0, err
	}
	z, err := toU256(c)
	if err != nil {
		return 0, err
	}
	if z.IsZero() {
		return 0, ErrDivByZero
	}
	prod := new(uint256.Int).Mul(x, y)
	return fromU256(prod.Div(prod, z))
}

// Min returns the smaller of a and b.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// IsArithmetic reports whether err came from this package.
func IsArithmetic(err error) bool {
	return errors.Is(err, ErrOverflow) ||
		errors.Is(err, ErrUnderflow) ||
		errors.Is(err, ErrNegative) ||
		errors.Is(err, ErrDivByZero)
}
