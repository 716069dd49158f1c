package domain

import "math"

type Totals struct {
	Subtotal  int64
	TaxAmount int64
	Total     int64
}

// ComputeTotals sums line amounts and applies taxRate as a percentage of the
// subtotal. Each step is rounded half away from zero to minor units.
func ComputeTotals(items []LineItem, taxRate float64) Totals {
	var subtotal int64
	for _, item := range items {
		subtotal += item.Amount()
	}
	tax := roundMinor(float64(subtotal) * taxRate / 100)
	return Totals{Subtotal: subtotal, TaxAmount: tax, Total: subtotal + tax}
}

func roundMinor(v float64) int64 {
	return int64(math.Round(v))
}
