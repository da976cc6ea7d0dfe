// Package types provides common types used across tally.
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when an engine is not configured with one.
const DefaultCurrency = "INR"

// Money is a signed decimal amount in a single currency.
//
// Amounts are exact decimals, so balances never drift the way binary
// floating point does. An empty Currency is "unassigned" and adopts the
// currency of the other operand in arithmetic.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"` // ISO 4217 uppercase: "INR", "USD"
}

// New creates a Money value from a decimal amount.
func New(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(currency)}
}

// FromInt creates a Money value from a whole number of major units.
func FromInt(v int64, currency string) Money {
	return New(decimal.NewFromInt(v), currency)
}

// Parse parses a decimal string such as "249.50".
func Parse(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return New(d, currency), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s, currency string) Money {
	m, err := Parse(s, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return New(decimal.Zero, currency) }

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	cur := m.resolveCurrency(other)
	return Money{Amount: m.Amount.Add(other.Amount), Currency: cur}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	cur := m.resolveCurrency(other)
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: cur}
}

// Mul multiplies the amount by a decimal quantity.
func (m Money) Mul(qty decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(qty), Currency: m.Currency}
}

// Negate returns the negative of the Money value.
func (m Money) Negate() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	return Money{Amount: m.Amount.Abs(), Currency: m.Currency}
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Equal reports whether both values have the same amount and currency.
// Trailing zeros are ignored: 1.50 equals 1.5.
func (m Money) Equal(other Money) bool {
	return m.Amount.Equal(other.Amount) && m.Currency == other.Currency
}

// Cmp compares amounts, returning -1, 0 or +1. Panics if currencies don't match.
func (m Money) Cmp(other Money) int {
	m.resolveCurrency(other)
	return m.Amount.Cmp(other.Amount)
}

// LessThan returns true if this Money is less than other.
func (m Money) LessThan(other Money) bool { return m.Cmp(other) < 0 }

// GreaterThan returns true if this Money is greater than other.
func (m Money) GreaterThan(other Money) bool { return m.Cmp(other) > 0 }

// FormatMajor returns the amount rounded to the currency's minor unit,
// without a symbol: "249.50" for INR, "100" for JPY.
func (m Money) FormatMajor() string {
	return m.Amount.StringFixed(int32(fraction(m.Currency)))
}

// String returns a human-readable string with currency symbol, e.g. "₹249.50".
func (m Money) String() string {
	cur := money.GetCurrency(m.Currency)
	if cur == nil {
		if m.Currency == "" {
			return m.FormatMajor()
		}
		return m.Currency + " " + m.FormatMajor()
	}
	minor := m.Amount.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

// MarshalJSON implements json.Marshaler. Amounts are encoded as strings so
// no precision is lost in transit.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount.String(),
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. The display field is ignored.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("money: %w", err)
	}
	*m = New(raw.Amount, raw.Currency)
	return nil
}

// resolveCurrency returns the shared currency of m and other, panicking
// when both are set and differ.
func (m Money) resolveCurrency(other Money) string {
	switch {
	case m.Currency == other.Currency:
		return m.Currency
	case m.Currency == "":
		return other.Currency
	case other.Currency == "":
		return m.Currency
	default:
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

// fraction returns the number of minor-unit digits for a currency.
func fraction(currency string) int {
	if cur := money.GetCurrency(currency); cur != nil {
		return cur.Fraction
	}
	return 2
}

// Sum adds values in the given currency. An empty list sums to zero.
func Sum(currency string, values ...Money) Money {
	result := Zero(currency)
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
