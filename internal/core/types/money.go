// Package types provides common value types shared by domain packages.
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// MoneyPlaces is the number of fractional digits kept for amounts (agorot, cents).
const MoneyPlaces = 2

// DefaultCurrency is used when a document does not name one.
const DefaultCurrency = "ILS"

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// RoundMoney rounds to MoneyPlaces using banker's rounding.
func RoundMoney(m Money) Money {
	return m.RoundBank(MoneyPlaces)
}

// ValidateAmount rejects negative amounts and amounts with more than MoneyPlaces digits.
func ValidateAmount(field string, m Money) error {
	if m.IsNegative() {
		return fmt.Errorf("%s must not be negative", field)
	}
	if !m.Equal(m.Truncate(MoneyPlaces)) {
		return fmt.Errorf("%s must have at most %d decimal places", field, MoneyPlaces)
	}
	return nil
}

// NormalizeCurrency returns an upper-case ISO 4217 code, defaulting to ILS.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	if len(code) != 3 {
		return "", fmt.Errorf("currency must be a 3-letter ISO 4217 code")
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("currency must be a 3-letter ISO 4217 code")
		}
	}
	return code, nil
}
