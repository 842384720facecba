package coupon

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates how a coupon's Discount value is interpreted.
type Type string

const (
	// TypePercent discounts a percentage of the eligible subtotal.
	TypePercent Type = "percent"
	// TypeCurrency discounts a fixed amount, per unit when product scoped.
	TypeCurrency Type = "currency"
	// TypeFree waives the eligible subtotal entirely.
	TypeFree Type = "free"
)

// Valid reports whether t is one of the types accepted on create and update.
func (t Type) Valid() bool {
	switch t {
	case TypePercent, TypeCurrency, TypeFree:
		return true
	default:
		return false
	}
}

// Scope is the restriction mode of a coupon, stored as can_use_for.
type Scope string

const (
	ScopeAll           Scope = "all"
	ScopeClient        Scope = "client"
	ScopeProduct       Scope = "product"
	ScopeProductClient Scope = "product_client"
)

// RestrictsClients reports whether the order's client must be in the
// coupon's client set.
func (s Scope) RestrictsClients() bool {
	switch s {
	case ScopeClient, ScopeProductClient:
		return true
	default:
		return false
	}
}

// RestrictsProducts reports whether only order items for the coupon's
// products are eligible.
func (s Scope) RestrictsProducts() bool {
	switch s {
	case ScopeProduct, ScopeProductClient:
		return true
	default:
		return false
	}
}

// DeriveScope computes can_use_for from the association sets.
func DeriveScope(clientIDs, productIDs []int64) Scope {
	clients, products := len(clientIDs) > 0, len(productIDs) > 0
	switch {
	case clients && products:
		return ScopeProductClient
	case products:
		return ScopeProduct
	case clients:
		return ScopeClient
	default:
		return ScopeAll
	}
}

// NormalizeCode returns the lookup form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Coupon is a promotional code together with its restriction sets.
type Coupon struct {
	ID         int64
	Code       string
	Discount   decimal.Decimal
	Type       Type
	ValidFrom  *time.Time
	ValidUntil *time.Time
	Quantity   int
	Recursive  bool
	Scope      Scope
	ClientIDs  []int64
	ProductIDs []int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

var (
	hundred = decimal.NewFromInt(100)
	// maxDiscount is the largest value a NUMERIC(12,2) column holds.
	maxDiscount = decimal.RequireFromString("9999999999.99")
)

// MaxQuantity is the largest redemption count the store can hold.
const MaxQuantity = math.MaxInt32

// Validate checks the invariants an admin write must satisfy.
func (c *Coupon) Validate() error {
	if n := utf8.RuneCountInString(c.Code); n < 2 || n > 64 {
		return errors.Wrap(ErrInvalid, "code must be between 2 and 64 characters")
	}
	if !c.Type.Valid() {
		return errors.Wrapf(ErrInvalid, "unsupported coupon type %q", c.Type)
	}
	if !c.Discount.IsPositive() && c.Type != TypeFree {
		return errors.Wrap(ErrInvalid, "discount must be greater than 0")
	}
	if !c.Discount.Equal(c.Discount.Round(2)) {
		return errors.Wrap(ErrInvalid, "discount must have at most 2 decimal places")
	}
	if c.Discount.GreaterThan(maxDiscount) {
		return errors.Wrap(ErrInvalid, "discount is too large")
	}
	if c.Type == TypePercent && c.Discount.GreaterThan(hundred) {
		return errors.Wrap(ErrInvalid, "percent discount must not exceed 100")
	}
	if c.Quantity < 0 {
		return errors.Wrap(ErrInvalid, "quantity must not be negative")
	}
	if c.Quantity > MaxQuantity {
		return errors.Wrapf(ErrInvalid, "quantity must not exceed %d", MaxQuantity)
	}
	if c.ValidFrom != nil && c.ValidUntil != nil && c.ValidUntil.Before(*c.ValidFrom) {
		return errors.Wrap(ErrInvalid, "valid_until must not be before valid_from")
	}
	return nil
}
