package coupon

import (
	"github.com/shopspring/decimal"
)

var zero = decimal.Zero

// Compute returns the monetary discount the coupon grants on the target.
//
// Product-scoped coupons only see lines for their products: percent sums
// line subtotal * discount / 100, currency sums discount * quantity, and any
// other type waives the lines' subtotals. Unscoped coupons work on the whole
// order: percent of the subtotal, a flat currency amount, or the subtotal.
//
// Per-line amounts are accumulated at full precision and the result is
// rounded half-up to cents once, so summation never drifts.
func Compute(c *Coupon, t Target) decimal.Decimal {
	var amount decimal.Decimal
	if c.Scope.RestrictsProducts() {
		amount = computeLines(c, scopedLines(c, t.Lines))
	} else {
		amount = computeOrder(c, t.Subtotal)
	}
	return floorAtZero(amount).Round(2)
}

func computeLines(c *Coupon, lines []Line) decimal.Decimal {
	sum := zero
	for _, l := range lines {
		switch c.Type {
		case TypePercent:
			sum = sum.Add(l.Subtotal.Mul(c.Discount).Div(hundred))
		case TypeCurrency:
			sum = sum.Add(c.Discount.Mul(decimal.NewFromInt(int64(l.Quantity))))
		default:
			sum = sum.Add(l.Subtotal)
		}
	}
	return sum
}

func computeOrder(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	switch c.Type {
	case TypePercent:
		return subtotal.Mul(c.Discount).Div(hundred)
	case TypeCurrency:
		return c.Discount
	default:
		return subtotal
	}
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
