package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// minor-unit exponents for the currencies the platform settles in.
// Anything unlisted is assumed to carry two decimal places.
var currencyPrecisions = map[string]int32{
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"NGN": 2,
	"KES": 2,
	"GHS": 2,
	"ZAR": 2,
	"AED": 2,
	"JPY": 0,
	"KWD": 3,
	"BHD": 3,
}

// Precision returns the number of decimal places for a currency.
func Precision(currency string) int32 {
	if p, ok := currencyPrecisions[currency]; ok {
		return p
	}
	return 2
}

// ToMinorUnits converts a decimal amount to the currency's minor units.
// Amounts with more decimal places than the currency carries are rejected
// rather than silently rounded.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	precision := Precision(currency)
	scaled := amount.Shift(precision)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimal places for %s", amount.String(), precision, currency)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s overflows minor units for %s", amount.String(), currency)
	}
	return scaled.IntPart(), nil
}

// FromMinorUnits converts a minor-unit amount back to a decimal for display.
func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -Precision(currency))
}
