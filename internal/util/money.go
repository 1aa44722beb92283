package util

import (
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits balances are kept at
const MoneyPlaces = 2

// RoundMoney rounds half away from zero to cents
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MoneyPtr returns a pointer to a copy of d
func MoneyPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// FormatMoney renders d with exactly two decimals. nil renders as 0.00.
func FormatMoney(d *decimal.Decimal) string {
	if d == nil {
		return decimal.Zero.StringFixed(MoneyPlaces)
	}
	return d.StringFixed(MoneyPlaces)
}
