package domain

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// currencyExponents lists ISO 4217 minor-unit exponents that differ from 2.
var currencyExponents = map[string]int32{
	"IDR": 0,
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
}

func CurrencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return exp
	}
	return 2
}

// ToMinor converts a major-unit amount to the provider's integer minor units.
// Amounts with more precision than the currency allows are rejected.
func ToMinor(amount decimal.Decimal, currency string) (int64, error) {
	exp := CurrencyExponent(currency)
	if !amount.Equal(amount.Round(exp)) {
		return 0, ErrInvalidAmount
	}
	minor := amount.Shift(exp)
	if !minor.IsInteger() || minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

func FromMinor(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -CurrencyExponent(currency))
}
