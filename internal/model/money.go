package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Prices and costs travel as float64 on the wire but carry two-decimal
// semantics. Arithmetic on them goes through decimal to avoid drift.

// RoundMoney rounds f to two decimal places.
func RoundMoney(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}

// MoneyDelta returns next - prev rounded to two decimals.
func MoneyDelta(next, prev float64) float64 {
	return decimal.NewFromFloat(next).Sub(decimal.NewFromFloat(prev)).Round(2).InexactFloat64()
}

// MoneyTimes returns qty × unit rounded to two decimals.
// Used for waste cost where qty is a unit count.
func MoneyTimes(qty, unit float64) float64 {
	return decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(unit)).Round(2).InexactFloat64()
}

// FormatMoney renders f with exactly two decimals ("49.90").
func FormatMoney(f float64) string {
	return decimal.NewFromFloat(f).StringFixed(2)
}

// ParseMoney parses user or API supplied amounts.
// Accepts a comma decimal separator ("12,50"). Returns false for blank or
// unparsable input.
func ParseMoney(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}
