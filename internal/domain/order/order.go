package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/paging"
)

// Status is the order lifecycle state. The set is open-ended.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusCanceled Status = "canceled"
)

// Order is a purchase with its line items and applied discounts.
type Order struct {
	ID        int64
	UserID    int64
	Status    Status
	Items     []Item
	Discounts []Discount
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is an order line. Subtotal is the unit price times the quantity at
// the time the line was written.
type Item struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	Subtotal  decimal.Decimal
}

// Discount records one coupon redemption against one order. Amount never
// changes after creation.
type Discount struct {
	ID        int64
	OrderID   int64
	CouponID  int64
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// Subtotal returns the sum of item subtotals.
func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.Subtotal)
	}
	return sum
}

// DiscountTotal returns the sum of applied discount amounts.
func (o *Order) DiscountTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, d := range o.Discounts {
		sum = sum.Add(d.Amount)
	}
	return sum
}

// Total is subtotal minus discounts, floored at zero and rounded to cents.
func (o *Order) Total() decimal.Decimal {
	total := o.Subtotal().Sub(o.DiscountTotal())
	if total.IsNegative() {
		total = decimal.Zero
	}
	return total.Round(2)
}

// QtyItems returns the number of units across all lines.
func (o *Order) QtyItems() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// CouponTarget returns the view of the order used for coupon eligibility
// and discount calculation.
func (o *Order) CouponTarget() coupon.Target {
	lines := make([]coupon.Line, len(o.Items))
	for i, it := range o.Items {
		lines[i] = coupon.Line{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal,
		}
	}
	return coupon.Target{
		ClientID: o.UserID,
		Subtotal: o.Subtotal(),
		Lines:    lines,
	}
}

// CouponIDs returns the distinct coupons applied through the order's
// discounts, in first-applied order.
func (o *Order) CouponIDs() []int64 {
	seen := make(map[int64]struct{}, len(o.Discounts))
	ids := make([]int64, 0, len(o.Discounts))
	for _, d := range o.Discounts {
		if _, ok := seen[d.CouponID]; ok {
			continue
		}
		seen[d.CouponID] = struct{}{}
		ids = append(ids, d.CouponID)
	}
	return ids
}

// Filter narrows an order listing. ID matches as a substring of the order
// id. When both fields are set an order matches either of them.
type Filter struct {
	Status Status
	ID     string
}

// Repository provides read access to orders outside of a transaction.
// Returned orders carry their items and discounts.
type Repository interface {
	List(ctx context.Context, f Filter, p paging.Request) (paging.Result[Order], error)
	Get(ctx context.Context, id int64) (*Order, error)
}

// Tx is the set of order writes available inside one transaction.
type Tx interface {
	// Lock loads an order with items and discounts and holds its row until
	// commit.
	Lock(ctx context.Context, id int64) (*Order, error)
	Create(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	// ReplaceItems deletes the order's items and inserts items, setting
	// their ids.
	ReplaceItems(ctx context.Context, orderID int64, items []Item) error
	// DeleteDiscounts removes every discount of the order and returns them.
	DeleteDiscounts(ctx context.Context, orderID int64) ([]Discount, error)
	IncrementCouponQuantity(ctx context.Context, couponID int64) error
	Delete(ctx context.Context, id int64) error
}

// Store runs fn in a transaction that commits when fn returns nil and rolls
// back on any error or panic.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
