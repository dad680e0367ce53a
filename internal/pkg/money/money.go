// Package money converts between Fils (minor unit) and AED and applies
// percentage rates without float rounding drift.
package money

import "github.com/shopspring/decimal"

// FilsPerAED is the number of minor units in one dirham.
const FilsPerAED = 100

var (
	filsPerAED = decimal.NewFromInt(FilsPerAED)
	hundred    = decimal.NewFromInt(100)
)

// ToAED converts Fils to the major currency amount.
func ToAED(fils int64) decimal.Decimal {
	return decimal.NewFromInt(fils).Div(filsPerAED)
}

// FromAED converts an AED amount to Fils, truncating fractions of a fil.
func FromAED(aed decimal.Decimal) int64 {
	return aed.Mul(filsPerAED).Truncate(0).IntPart()
}

// Percent returns base * rate / 100, truncated to whole units.
// A cashback of 2.5% on 1999 Fils yields 49 Fils, never 50.
func Percent(base int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(base).Mul(rate).Div(hundred).Truncate(0).IntPart()
}

// ValidRate reports whether rate lies in [0, 100].
func ValidRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(hundred)
}
