// Package core provides money parsing and handling utilities.
//
// Prices are stored as whole kopecks so that revenue sums never drift;
// decimal arithmetic is only used for division and formatting.
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Money is an amount in rubles stored as kopecks.
type Money struct {
	Kopecks int64
}

// Rubles builds Money from a whole ruble amount.
func Rubles(r int64) Money {
	return Money{Kopecks: r * 100}
}

// MoneyFromDecimal rounds d (rubles) half-up to kopecks.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Kopecks: d.Shift(2).Round(0).IntPart()}
}

// ParseDecimalToKopecks converts a decimal string to kopecks.
//
// Both dot and comma separators are accepted, the third decimal place is
// rounded half-up, and negative values are rejected. Zero is allowed since a
// catalog item may be free.
//
// Examples:
//   ParseDecimalToKopecks("81")     -> 8100, nil
//   ParseDecimalToKopecks("12,34")  -> 1234, nil
//   ParseDecimalToKopecks("12.345") -> 1235, nil
func ParseDecimalToKopecks(s string) (int64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" || strings.HasPrefix(s, "+") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return 0, ErrInvalidAmount
	}
	return MoneyFromDecimal(d).Kopecks, nil
}

// Decimal returns the amount in rubles.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Kopecks, -2)
}

// Times multiplies a unit price by a count.
func (m Money) Times(n int64) Money {
	return Money{Kopecks: m.Kopecks * n}
}

func (m Money) Add(o Money) Money {
	return Money{Kopecks: m.Kopecks + o.Kopecks}
}

func (m Money) IsZero() bool {
	return m.Kopecks == 0
}

// String renders whole amounts without a fraction ("546 ₽") and others with
// two decimals ("346.67 ₽").
func (m Money) String() string {
	if m.Kopecks%100 == 0 {
		return m.Decimal().StringFixed(0) + " ₽"
	}
	return m.Decimal().StringFixed(2) + " ₽"
}

// AverageTicket divides revenue by count, rounding to kopecks. Zero count yields zero.
func AverageTicket(revenue Money, count int64) Money {
	if count <= 0 {
		return Money{}
	}
	return MoneyFromDecimal(revenue.Decimal().Div(decimal.NewFromInt(count)))
}

// MarshalJSON encodes the amount as a plain JSON number of rubles.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		m.Kopecks = 0
		return nil
	}
	k, err := ParseDecimalToKopecks(s)
	if err != nil {
		return err
	}
	m.Kopecks = k
	return nil
}
