package coupon

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Line is an order line as seen by eligibility and discount calculation.
type Line struct {
	ProductID int64
	Quantity  int
	Subtotal  decimal.Decimal
}

// Target is the order a coupon is being evaluated against.
type Target struct {
	ClientID int64
	Subtotal decimal.Decimal
	Lines    []Line
}

// Evaluator decides whether a coupon is currently usable against an order.
type Evaluator struct {
	now func() time.Time
}

// NewEvaluator returns an Evaluator using the wall clock.
func NewEvaluator() *Evaluator {
	return &Evaluator{now: time.Now}
}

// NewEvaluatorAt returns an Evaluator reading the time from now.
func NewEvaluatorAt(now func() time.Time) *Evaluator {
	return &Evaluator{now: now}
}

// Check runs the per-coupon checks in order: remaining quantity, validity
// window (inclusive on both ends), client scope and product scope. It fails
// closed with an *IneligibleError.
func (e *Evaluator) Check(c *Coupon, t Target) error {
	if c.Quantity <= 0 {
		return &IneligibleError{Code: c.Code, Reason: ReasonExhausted}
	}

	now := e.now()
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return &IneligibleError{Code: c.Code, Reason: ReasonExpired}
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return &IneligibleError{Code: c.Code, Reason: ReasonExpired}
	}

	if c.Scope.RestrictsClients() && !lo.Contains(c.ClientIDs, t.ClientID) {
		return &IneligibleError{Code: c.Code, Reason: ReasonWrongScope}
	}
	if c.Scope.RestrictsProducts() && len(scopedLines(c, t.Lines)) == 0 {
		return &IneligibleError{Code: c.Code, Reason: ReasonWrongScope}
	}

	return nil
}

// CanApply is Check reduced to a boolean.
func (e *Evaluator) CanApply(c *Coupon, t Target) bool {
	return e.Check(c, t) == nil
}

// CheckStacking is the order-level check: an order without discounts accepts
// any coupon, an order that already has one accepts only recursive coupons.
func CheckStacking(c *Coupon, existingDiscounts int) error {
	if existingDiscounts > 0 && !c.Recursive {
		return &IneligibleError{Code: c.Code, Reason: ReasonAlreadyApplied}
	}
	return nil
}

// scopedLines returns the lines whose product is in the coupon's product set.
func scopedLines(c *Coupon, lines []Line) []Line {
	return lo.Filter(lines, func(l Line, _ int) bool {
		return lo.Contains(c.ProductIDs, l.ProductID)
	})
}
