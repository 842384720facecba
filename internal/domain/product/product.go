package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/paging"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInUse is returned when deleting a product that order items
	// reference.
	ErrInUse = errors.New("product is referenced by orders")
	// ErrInvalid wraps product attribute validation failures.
	ErrInvalid = errors.New("invalid product")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	CategoryID  *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the invariants a write must satisfy.
func (p *Product) Validate() error {
	if p.Name == "" {
		return errors.Wrap(ErrInvalid, "name is required")
	}
	if p.Price.IsNegative() {
		return errors.Wrap(ErrInvalid, "price must not be negative")
	}
	return nil
}

// Filter narrows a product listing. Name matches as a case-insensitive
// substring.
type Filter struct {
	Name string
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context, f Filter, p paging.Request) (paging.Result[Product], error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id int64) error
}
