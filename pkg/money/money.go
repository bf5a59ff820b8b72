// Package money provides a fixed-precision decimal type for price
// arithmetic in the monitoring core. Price deltas and percentages are
// computed in decimal; callers convert to float64 only through Float64.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount wraps decimal.Decimal so every price-bearing field in the domain
// shares one serialization and arithmetic surface.
type Amount struct {
	decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{decimal.Zero}

// NewFromFloat builds an Amount from a float64. Only meant for literals in
// tests and config defaults; values coming off the wire should use
// NewFromString.
func NewFromFloat(f float64) Amount {
	return Amount{decimal.NewFromFloat(f)}
}

// NewFromString parses a decimal string such as "19.99".
func NewFromString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	return Amount{d}, nil
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{a.Decimal.Sub(b.Decimal)}
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{a.Decimal.Add(b.Decimal)}
}

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool {
	return a.Decimal.IsPositive()
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a.Decimal.IsZero()
}

// IsNegative reports whether the amount is strictly less than zero.
func (a Amount) IsNegative() bool {
	return a.Decimal.IsNegative()
}

// LessThanOrEqual reports whether a <= b.
func (a Amount) LessThanOrEqual(b Amount) bool {
	return a.Decimal.LessThanOrEqual(b.Decimal)
}

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool {
	return a.Decimal.LessThan(b.Decimal)
}

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool {
	return a.Decimal.GreaterThan(b.Decimal)
}

// Abs returns the absolute value.
func (a Amount) Abs() Amount {
	return Amount{a.Decimal.Abs()}
}

// PercentChangeFrom computes ((a - from) / from) * 100, rounded to 2
// fractional digits. Returns zero when from is zero or negative, since a
// percentage change has no defined baseline in that case.
func (a Amount) PercentChangeFrom(from Amount) Amount {
	if !from.IsPositive() {
		return Zero
	}
	diff := a.Sub(from)
	pct := diff.Decimal.Div(from.Decimal).Mul(decimal.NewFromInt(100))
	return Amount{pct.Round(2)}
}

// Float64 returns the best-effort float64 representation. Callers use it
// at display/logging boundaries, as input to the scorer's float-valued
// factors, and to compare a percentage against a float threshold.
func (a Amount) Float64() float64 {
	f, _ := a.Decimal.Float64()
	return f
}

// MarshalJSON delegates to decimal.Decimal's string-based encoding so
// prices never round-trip through a binary float representation.
func (a Amount) MarshalJSON() ([]byte, error) {
	return a.Decimal.MarshalJSON()
}

// UnmarshalJSON delegates to decimal.Decimal.
func (a *Amount) UnmarshalJSON(data []byte) error {
	return a.Decimal.UnmarshalJSON(data)
}

// Value implements driver.Valuer for storing Amount in a SQL column.
func (a Amount) Value() (driver.Value, error) {
	return a.Decimal.Value()
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(value interface{}) error {
	return a.Decimal.Scan(value)
}
