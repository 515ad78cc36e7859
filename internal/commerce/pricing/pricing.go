// Package pricing holds the checkout arithmetic: currency rounding and
// the subtotal → discount → tax → total pipeline. All amounts are dollars
// rounded to cents at each stage.
package pricing

import "math"

// TaxRate is the flat sales-tax rate, applied to the discounted subtotal.
const TaxRate = 0.08

// Round2 rounds to 2 decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Totals is the checkout breakdown.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// ComputeTotals derives tax and total from a subtotal and a raw discount.
// The discount is clamped to [0, subtotal] so the total can never go
// negative, then rounded before it feeds the tax computation.
func ComputeTotals(subtotal, discount float64) Totals {
	subtotal = Round2(subtotal)
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	discount = Round2(discount)

	taxable := subtotal - discount
	tax := Round2(taxable * TaxRate)
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    Round2(taxable + tax),
	}
}
