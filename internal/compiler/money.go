package compiler

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in integer cents. Catalog prices are parsed into Money
// once and all arithmetic stays in cents.
type Money int64

var ErrInvalidPrice = errors.New("invalid price")

// MaxPrice bounds a single catalog price. Together with MaxQuantity it keeps
// every line total far inside int64.
const MaxPrice Money = 100_000_000_00

var (
	maxPriceDecimal = decimal.New(int64(MaxPrice), -2)
	maxMoneyDecimal = decimal.New(math.MaxInt64, -2)
)

// ParseMoney parses a non-negative decimal string such as "10", "10.5" or
// "10.50", rounding half away from zero to cents.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidPrice, s)
	}
	d = d.Round(2)
	if d.GreaterThan(maxPriceDecimal) {
		return 0, fmt.Errorf("%w: %q exceeds %s", ErrInvalidPrice, s, MaxPrice.Fixed())
	}
	return Money(d.Shift(2).IntPart()), nil
}

// MoneyFromDecimal converts d to Money only when it is non-negative, has no
// more than two decimal places and fits in int64 cents.
func MoneyFromDecimal(d decimal.Decimal) (Money, bool) {
	if d.IsNegative() || !d.Equal(d.Round(2)) || d.GreaterThan(maxMoneyDecimal) {
		return 0, false
	}
	return Money(d.Shift(2).IntPart()), true
}

// Times multiplies by qty. ok is false on overflow or a negative operand.
func (m Money) Times(qty int) (Money, bool) {
	if m < 0 || qty < 0 {
		return 0, false
	}
	if qty != 0 && m > Money(math.MaxInt64/int64(qty)) {
		return 0, false
	}
	return m * Money(qty), true
}

// Plus adds n. ok is false on overflow or a negative operand.
func (m Money) Plus(n Money) (Money, bool) {
	if m < 0 || n < 0 || m > math.MaxInt64-n {
		return 0, false
	}
	return m + n, true
}

func (m Money) decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// Fixed formats the amount with exactly two decimals: "12.50".
func (m Money) Fixed() string {
	return m.decimal().StringFixed(2)
}

// Float64 returns the amount in currency units.
func (m Money) Float64() float64 {
	f, _ := m.decimal().Float64()
	return f
}

func (m Money) String() string {
	return m.Fixed()
}

// MarshalJSON writes the amount as a plain JSON number in currency units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.decimal().String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || strings.HasPrefix(raw, `"`) {
		return fmt.Errorf("%w: money must be a JSON number, got %s", ErrInvalidPrice, raw)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, raw)
	}
	v, ok := MoneyFromDecimal(d)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, raw)
	}
	*m = v
	return nil
}
