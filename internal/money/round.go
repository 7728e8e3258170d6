// Package money provides the fixed-precision rounding policy used by all
// monetary math: 2 decimals for fiat values, 6 for prices, 8 for asset
// quantities. Rounding goes through shopspring/decimal so that half-way
// cases round half-up instead of inheriting float64 banker's artifacts.
package money

import "github.com/shopspring/decimal"

// Round2 rounds to 2 decimal places (fiat values, fees, P&L).
func Round2(v float64) float64 {
	return roundTo(v, 2)
}

// Round6 rounds to 6 decimal places (prices).
func Round6(v float64) float64 {
	return roundTo(v, 6)
}

// Round8 rounds to 8 decimal places (asset quantities).
func Round8(v float64) float64 {
	return roundTo(v, 8)
}

func roundTo(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
