// Package dashboard summarizes store activity for the admin overview.
package dashboard

import (
	"context"

	"github.com/shopspring/decimal"
)

// Summary holds store-wide totals.
type Summary struct {
	Users    int
	Orders   int
	Products int
	// Sales is the sum of every order item subtotal.
	Sales decimal.Decimal
	// Discounts is the sum of every applied discount.
	Discounts decimal.Decimal
}

// Revenue is sales less discounts, rounded to cents.
func (s *Summary) Revenue() decimal.Decimal {
	return s.Sales.Sub(s.Discounts).Round(2)
}

// Repository computes the summary from the store.
type Repository interface {
	Summary(ctx context.Context) (*Summary, error)
}
