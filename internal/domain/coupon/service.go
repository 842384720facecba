package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/paging"
)

// Filter narrows a coupon listing. Code matches as a case-insensitive
// substring.
type Filter struct {
	Code string
}

// Repository provides read access to coupons outside of a transaction.
// Returned coupons carry their client and product sets.
type Repository interface {
	List(ctx context.Context, f Filter, p paging.Request) (paging.Result[Coupon], error)
	Get(ctx context.Context, id int64) (*Coupon, error)
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Coupon, error)
}

// Tx is the set of coupon writes available inside one transaction.
type Tx interface {
	// Lock loads a coupon with its sets and holds its row until commit.
	Lock(ctx context.Context, id int64) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	// SyncClients replaces the coupon's client set; nil or empty detaches all.
	SyncClients(ctx context.Context, couponID int64, userIDs []int64) error
	// SyncProducts replaces the coupon's product set; nil or empty detaches all.
	SyncProducts(ctx context.Context, couponID int64, productIDs []int64) error
	CountDiscounts(ctx context.Context, couponID int64) (int, error)
	Delete(ctx context.Context, id int64) error
}

// Store runs fn in a transaction that commits when fn returns nil and rolls
// back on any error or panic.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Patch holds a partial coupon update. Nil fields keep the stored value.
// A nil ClientIDs or ProductIDs keeps the stored set, a non-nil slice (even
// empty) replaces it.
type Patch struct {
	Code       *string
	Discount   *decimal.Decimal
	Type       *Type
	ValidFrom  *time.Time
	ValidUntil *time.Time
	Quantity   *int
	Recursive  *bool
	ClientIDs  []int64
	ProductIDs []int64
}

func (p Patch) apply(c *Coupon) {
	if p.Code != nil {
		c.Code = NormalizeCode(*p.Code)
	}
	if p.Discount != nil {
		c.Discount = *p.Discount
	}
	if p.Type != nil {
		c.Type = *p.Type
	}
	if p.ValidFrom != nil {
		c.ValidFrom = p.ValidFrom
	}
	if p.ValidUntil != nil {
		c.ValidUntil = p.ValidUntil
	}
	if p.Quantity != nil {
		c.Quantity = *p.Quantity
	}
	if p.Recursive != nil {
		c.Recursive = *p.Recursive
	}
	if p.ClientIDs != nil {
		c.ClientIDs = lo.Uniq(p.ClientIDs)
	}
	if p.ProductIDs != nil {
		c.ProductIDs = lo.Uniq(p.ProductIDs)
	}
}

// Service implements coupon administration.
type Service struct {
	coupons Repository
	store   Store
}

// NewService creates a coupon Service.
func NewService(coupons Repository, store Store) *Service {
	return &Service{coupons: coupons, store: store}
}

// List returns one page of coupons matching f.
func (s *Service) List(ctx context.Context, f Filter, p paging.Request) (paging.Result[Coupon], error) {
	return s.coupons.List(ctx, f, p.Normalize())
}

// Get returns the coupon with the given id.
func (s *Service) Get(ctx context.Context, id int64) (*Coupon, error) {
	return s.coupons.Get(ctx, id)
}

// GetByCode looks a coupon up by its normalized code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	return s.coupons.GetByCode(ctx, NormalizeCode(code))
}

// Create stores a new coupon with its client and product restrictions and
// derives its scope from them.
func (s *Service) Create(ctx context.Context, c Coupon) (*Coupon, error) {
	c.Code = NormalizeCode(c.Code)
	c.ClientIDs = lo.Uniq(c.ClientIDs)
	c.ProductIDs = lo.Uniq(c.ProductIDs)
	c.Scope = DeriveScope(c.ClientIDs, c.ProductIDs)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.Create(ctx, &c); err != nil {
			return err
		}
		if err := tx.SyncClients(ctx, c.ID, c.ClientIDs); err != nil {
			return errors.Wrap(err, "sync clients")
		}
		if err := tx.SyncProducts(ctx, c.ID, c.ProductIDs); err != nil {
			return errors.Wrap(err, "sync products")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Coupon created",
		zap.Int64("coupon_id", c.ID),
		zap.String("code", c.Code),
		zap.String("scope", string(c.Scope)),
	)
	return &c, nil
}

// Update merges the patch into the stored coupon, re-syncs any association
// set present in the patch and recomputes the scope from the resulting sets.
func (s *Service) Update(ctx context.Context, id int64, p Patch) (*Coupon, error) {
	var updated *Coupon
	err := s.store.InTx(ctx, func(tx Tx) error {
		c, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		p.apply(c)
		c.Scope = DeriveScope(c.ClientIDs, c.ProductIDs)
		if err := c.Validate(); err != nil {
			return err
		}

		if err := tx.Update(ctx, c); err != nil {
			return err
		}
		if p.ClientIDs != nil {
			if err := tx.SyncClients(ctx, c.ID, c.ClientIDs); err != nil {
				return errors.Wrap(err, "sync clients")
			}
		}
		if p.ProductIDs != nil {
			if err := tx.SyncProducts(ctx, c.ID, c.ProductIDs); err != nil {
				return errors.Wrap(err, "sync products")
			}
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Coupon updated",
		zap.Int64("coupon_id", updated.ID),
		zap.String("scope", string(updated.Scope)),
	)
	return updated, nil
}

// Delete detaches the coupon's clients and products and removes it. Coupons
// that any order discount references are kept and ErrInUse is returned.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.Lock(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountDiscounts(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrInUse
		}
		if err := tx.SyncClients(ctx, id, nil); err != nil {
			return errors.Wrap(err, "detach clients")
		}
		if err := tx.SyncProducts(ctx, id, nil); err != nil {
			return errors.Wrap(err, "detach products")
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	zctx.From(ctx).Info("Coupon deleted", zap.Int64("coupon_id", id))
	return nil
}
