// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer cents; arithmetic that can produce fractions of
// a cent (monthly rewards split into weeks, allowance conversions) goes
// through shopspring/decimal and is rounded back to cents once.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64
}

// maxWholeUnits keeps any parsed amount representable in int64 cents.
var maxWholeUnits = decimal.New((1<<63-1)/100, 0)

// ParseDecimalToCents reads a strictly positive amount typed by a person:
// "12.34", "12,34" or ".5". Digits past the cent are rounded half up, so
// "1.005" is 101 cents and "0.004" is rejected as zero.
func ParseDecimalToCents(s string) (int64, error) {
	cents, err := parseCents(s)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseNonNegativeCents also accepts zero; a base allowance may be nothing.
func ParseNonNegativeCents(s string) (int64, error) {
	return parseCents(s)
}

// parseCents allows ASCII digits with at most one separator. Signs and
// exponents are refused before decimal sees the text.
func parseCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	whole, frac, _ := strings.Cut(s, ".")
	if s == "" || strings.Contains(frac, ".") {
		return 0, ErrInvalidAmount
	}
	if !asciiDigits(whole) || !asciiDigits(frac) {
		return 0, ErrInvalidAmount
	}
	if whole == "" {
		whole = "0"
	}
	if frac == "" {
		frac = "0"
	}

	d, err := decimal.NewFromString(whole + "." + frac)
	if err != nil || d.GreaterThanOrEqual(maxWholeUnits) {
		return 0, ErrInvalidAmount
	}
	return MoneyFromDecimal(d).Cents, nil
}

func asciiDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// MoneyFromDecimal rounds d half away from zero to whole cents.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Round(2).Shift(2).IntPart()}
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// String renders the amount with two decimals, e.g. "12.50" or "-3.05".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalText lets Money appear as a fixed two-decimal string in JSON.
func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts any non-negative decimal amount.
func (m *Money) UnmarshalText(b []byte) error {
	cents, err := ParseNonNegativeCents(string(b))
	if err != nil {
		return err
	}
	m.Cents = cents
	return nil
}
