// Package types provides the value types shared across the adjudicator.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point monetary value in the currency's minor unit.
// All arithmetic is integer-only.
//
// Examples:
//   - USD(100000) = $1000.00
//   - KES(250000) = KSh 2500.00
//   - JPY(800) = ¥800
type Money struct {
	Amount   int64  `json:"amount"`   // minor units (cents, pence, ...)
	Currency string `json:"currency"` // ISO 4217 lowercase
}

// ErrInvalidAmount is returned by ParseMajor for malformed or over-precise input.
var ErrInvalidAmount = errors.New("money: invalid amount")

// USD creates a Money value in US Dollars (cents).
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// EUR creates a Money value in Euros (cents).
func EUR(cents int64) Money { return Money{Amount: cents, Currency: "eur"} }

// GBP creates a Money value in British Pounds (pence).
func GBP(pence int64) Money { return Money{Amount: pence, Currency: "gbp"} }

// KES creates a Money value in Kenyan Shillings (cents).
func KES(cents int64) Money { return Money{Amount: cents, Currency: "kes"} }

// INR creates a Money value in Indian Rupees (paise).
func INR(paise int64) Money { return Money{Amount: paise, Currency: "inr"} }

// JPY creates a Money value in Japanese Yen (no minor unit).
func JPY(yen int64) Money { return Money{Amount: yen, Currency: "jpy"} }

// Zero returns a zero Money value in the given currency.
func Zero(currency string) Money { return Money{Currency: strings.ToLower(currency)} }

// New creates a Money value from minor units in any currency.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// ParseMajor parses a major-unit string such as "1,234.50" into minor units.
// Input with more fractional digits than the currency carries is rejected
// rather than rounded.
func ParseMajor(s, currency string) (Money, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if cleaned == "" {
		return Money{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	places := int32(currencyDecimals(currency))
	minor := d.Shift(places)
	if !minor.IsInteger() {
		return Money{}, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, places)
	}
	if minor.GreaterThan(decimal.NewFromInt(maxInt64)) || minor.LessThan(decimal.NewFromInt(minInt64)) {
		return Money{}, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return New(minor.IntPart(), currency), nil
}

const (
	maxInt64 = int64(^uint64(0) >> 1)
	minInt64 = -maxInt64 - 1
)

// Arithmetic

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// Negate returns the negative of the Money value.
func (m Money) Negate() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// PercentOf returns pct percent of m, rounded half-up (halves away from
// zero) to the minor unit. pct must be within 0..100.
//
// The amount is split into hundreds and remainder before scaling so the
// intermediate product cannot overflow for any representable amount.
func (m Money) PercentOf(pct int) Money {
	if pct < 0 || pct > 100 {
		panic(fmt.Sprintf("money: percentage out of range: %d", pct))
	}
	p := int64(pct)
	q, r := m.Amount/100, m.Amount%100
	frac := r * p
	rounded := frac / 100
	rem := frac % 100
	switch {
	case rem >= 50:
		rounded++
	case rem <= -50:
		rounded--
	}
	return Money{Amount: q*p + rounded, Currency: m.Currency}
}

// Split divides billed into the covered share at pct percent and the
// remainder. The remainder is derived by subtraction so the two parts always
// sum to billed exactly.
func Split(billed Money, pct int) (covered, remainder Money) {
	covered = billed.PercentOf(pct)
	return covered, billed.Subtract(covered)
}

// Comparison

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both values have the same amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// LessThan reports m < other. Panics if currencies don't match.
func (m Money) LessThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount < other.Amount
}

// GreaterThan reports m > other. Panics if currencies don't match.
func (m Money) GreaterThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount > other.Amount
}

// SameCurrency reports whether both values are in the same currency.
func (m Money) SameCurrency(other Money) bool { return m.Currency == other.Currency }

// Formatting

// FormatMajor returns the major unit string without currency symbol,
// "1000.00" for USD(100000) and "800" for JPY(800).
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)
	if decimals == 0 {
		return fmt.Sprintf("%d", m.Amount)
	}
	return decimal.New(m.Amount, -int32(decimals)).StringFixed(int32(decimals))
}

// String returns a human-readable string with currency symbol.
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler and adds a display field.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler; the display field is ignored.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = New(raw.Amount, raw.Currency)
	return nil
}

func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

func currencySymbol(currency string) string {
	symbols := map[string]string{
		"usd": "$",
		"eur": "€",
		"gbp": "£",
		"jpy": "¥",
		"kes": "KSh ",
		"inr": "₹",
		"ngn": "₦",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

// currencyDecimals returns the number of minor-unit digits for a currency.
func currencyDecimals(currency string) int {
	zeroDecimal := map[string]bool{
		"jpy": true,
		"krw": true,
		"vnd": true,
		"clp": true,
		"ugx": true,
		"rwf": true,
	}
	if zeroDecimal[strings.ToLower(currency)] {
		return 0
	}
	return 2
}

// Sum adds values of one currency. An empty call returns zero in currency.
func Sum(currency string, values ...Money) Money {
	result := Zero(currency)
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
