// Package money holds the decimal arithmetic behind quote totals and the
// advance/balance installment split. Entities keep float64 amounts; every
// computation goes through shopspring/decimal and is rounded to cents.
package money

import "github.com/shopspring/decimal"

var (
	advanceShare = decimal.RequireFromString("0.30")
	hundred      = decimal.NewFromInt(100)
)

// Total returns hourlyRate × hours.
func Total(hourlyRate, hours float64) float64 {
	return decimal.NewFromFloat(hourlyRate).Mul(decimal.NewFromFloat(hours)).InexactFloat64()
}

// Split divides total into a 30% advance and a 70% balance. The advance is
// rounded to the cent and the balance takes the remainder, so the two always
// add back up to total.
func Split(total float64) (advance, balance float64) {
	t := decimal.NewFromFloat(total)
	a := t.Mul(advanceShare).Round(2)
	return a.InexactFloat64(), t.Sub(a).InexactFloat64()
}

// Cents converts an amount to integer cents.
func Cents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(hundred).Round(0).IntPart()
}

// Equal reports whether a and b are the same amount to the cent.
func Equal(a, b float64) bool {
	return Cents(a) == Cents(b)
}

// IsHalfHourStep reports whether hours is a positive multiple of 0.5.
func IsHalfHourStep(hours float64) bool {
	h := decimal.NewFromFloat(hours)
	if !h.IsPositive() {
		return false
	}
	return h.Mul(decimal.NewFromInt(2)).IsInteger()
}
