package common

import "github.com/shopspring/decimal"

// RoundTo rounds value to the nearest multiple of step. A non-positive step
// leaves value unchanged.
func RoundTo(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	s := decimal.NewFromFloat(step)
	rounded := decimal.NewFromFloat(value).Div(s).Round(0).Mul(s)
	f, _ := rounded.Float64()
	return f
}

// StepDelta returns RoundTo(to, step) - RoundTo(from, step), computed
// without float drift.
func StepDelta(from, to, step float64) float64 {
	if step <= 0 {
		f, _ := decimal.NewFromFloat(to).Sub(decimal.NewFromFloat(from)).Float64()
		return f
	}
	s := decimal.NewFromFloat(step)
	round := func(v float64) decimal.Decimal {
		return decimal.NewFromFloat(v).Div(s).Round(0).Mul(s)
	}
	f, _ := round(to).Sub(round(from)).Float64()
	return f
}
