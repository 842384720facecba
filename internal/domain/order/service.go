package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/product"
)

// Sentinel errors for order lookups.
var (
	ErrNotFound         = errors.New("order not found")
	ErrDiscountNotFound = errors.New("discount not found")
	// ErrInvalid wraps references to users or products that do not exist.
	ErrInvalid = errors.New("invalid order")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// ItemInput is a requested order line.
type ItemInput struct {
	ProductID int64
	Quantity  int
}

// CreateInput holds the input for creating an order.
type CreateInput struct {
	UserID int64
	Status Status
	Items  []ItemInput
}

// Patch holds a partial order update. A non-nil Items replaces every line.
type Patch struct {
	UserID *int64
	Status *Status
	Items  []ItemInput
}

// Service encapsulates order administration.
type Service struct {
	products product.Repository
	orders   Repository
	store    Store
}

// NewService creates an order Service with the required domain dependencies.
func NewService(products product.Repository, orders Repository, store Store) *Service {
	return &Service{
		products: products,
		orders:   orders,
		store:    store,
	}
}

// List returns one page of orders, newest first.
func (s *Service) List(ctx context.Context, f Filter, p paging.Request) (paging.Result[Order], error) {
	return s.orders.List(ctx, f, p.Normalize())
}

// Get returns the order with its items and discounts.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// Create prices the requested items from the catalog and stores the order
// with its lines in one transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Order, error) {
	items, err := s.priceItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	o := &Order{
		UserID: in.UserID,
		Status: in.Status,
	}
	if o.Status == "" {
		o.Status = StatusPending
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.Create(ctx, o); err != nil {
			return err
		}
		if err := tx.ReplaceItems(ctx, o.ID, items); err != nil {
			return errors.Wrap(err, "sync items")
		}
		o.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order created",
		zap.Int64("order_id", o.ID),
		zap.Int64("user_id", o.UserID),
		zap.Int("items", len(o.Items)),
	)
	return o, nil
}

// Update merges the patch into the stored order. When the patch carries
// items, the order's lines are replaced and re-priced; existing discounts
// keep their recorded amounts.
func (s *Service) Update(ctx context.Context, id int64, p Patch) (*Order, error) {
	var items []Item
	if p.Items != nil {
		var err error
		if items, err = s.priceItems(ctx, p.Items); err != nil {
			return nil, err
		}
	}

	var updated *Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if p.UserID != nil {
			o.UserID = *p.UserID
		}
		if p.Status != nil {
			o.Status = *p.Status
		}
		if err := tx.Update(ctx, o); err != nil {
			return err
		}
		if items != nil {
			if err := tx.ReplaceItems(ctx, o.ID, items); err != nil {
				return errors.Wrap(err, "sync items")
			}
			o.Items = items
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order updated", zap.Int64("order_id", id))
	return updated, nil
}

// Delete removes the order with its items and discounts. Every removed
// discount gives its redemption back to the originating coupon.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.Lock(ctx, id); err != nil {
			return err
		}
		removed, err := tx.DeleteDiscounts(ctx, id)
		if err != nil {
			return err
		}
		for _, d := range removed {
			if err := tx.IncrementCouponQuantity(ctx, d.CouponID); err != nil {
				return errors.Wrapf(err, "restore coupon %d", d.CouponID)
			}
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	zctx.From(ctx).Info("Order deleted", zap.Int64("order_id", id))
	return nil
}

// priceItems validates quantities, fetches products in a single batch and
// returns lines priced at unit price times quantity.
func (s *Service) priceItems(ctx context.Context, in []ItemInput) ([]Item, error) {
	if len(in) == 0 {
		return []Item{}, nil
	}

	for _, it := range in {
		if it.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: it.ProductID}
		}
	}

	ids := lo.Uniq(lo.Map(in, func(it ItemInput, _ int) int64 { return it.ProductID }))
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := lo.KeyBy(fetched, func(p product.Product) int64 { return p.ID })

	items := make([]Item, len(in))
	for i, it := range in {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		items[i] = Item{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Subtotal:  p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2),
		}
	}
	return items, nil
}
