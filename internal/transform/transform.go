package transform

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/dashboard"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// Relations holds the entities an order response may reference, keyed by id.
type Relations struct {
	Users   map[int64]user.User
	Coupons map[int64]coupon.Coupon
}

// Money writes d as a JSON number with two decimals.
func Money(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func optionalTime(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	timestamp(e, *t)
}

func ids(e *jx.Encoder, v []int64) {
	e.Arr(func(e *jx.Encoder) {
		for _, id := range v {
			e.Int64(id)
		}
	})
}

// Page writes a paginated listing.
func Page[T any](e *jx.Encoder, p paging.Result[T], item func(e *jx.Encoder, v *T)) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("total", func(e *jx.Encoder) { e.Int(p.Total) })
		e.Field("perPage", func(e *jx.Encoder) { e.Int(p.PerPage) })
		e.Field("page", func(e *jx.Encoder) { e.Int(p.Page) })
		e.Field("lastPage", func(e *jx.Encoder) { e.Int(p.LastPage()) })
		e.Field("data", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range p.Items {
					item(e, &p.Items[i])
				}
			})
		})
	})
}

// Coupon writes a coupon with its restriction sets.
func Coupon(e *jx.Encoder, c *coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(c.ID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
		e.Field("discount", func(e *jx.Encoder) { Money(e, c.Discount) })
		e.Field("type", func(e *jx.Encoder) { e.Str(string(c.Type)) })
		e.Field("valid_from", func(e *jx.Encoder) { optionalTime(e, c.ValidFrom) })
		e.Field("valid_until", func(e *jx.Encoder) { optionalTime(e, c.ValidUntil) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(c.Quantity) })
		e.Field("recursive", func(e *jx.Encoder) { e.Bool(c.Recursive) })
		e.Field("can_use_for", func(e *jx.Encoder) { e.Str(string(c.Scope)) })
		e.Field("users", func(e *jx.Encoder) { ids(e, c.ClientIDs) })
		e.Field("products", func(e *jx.Encoder) { ids(e, c.ProductIDs) })
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, c.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { timestamp(e, c.UpdatedAt) })
	})
}

// Discount writes a discount with its coupon embedded. c may be nil when the
// coupon could not be loaded.
func Discount(e *jx.Encoder, d *order.Discount, c *coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(d.ID) })
		e.Field("amount", func(e *jx.Encoder) { Money(e, d.Amount) })
		e.Field("coupon_id", func(e *jx.Encoder) { e.Int64(d.CouponID) })
		e.Field("coupon", func(e *jx.Encoder) {
			if c == nil {
				e.Null()
				return
			}
			Coupon(e, c)
		})
	})
}

// Item writes an order line.
func Item(e *jx.Encoder, it *order.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
		e.Field("product_id", func(e *jx.Encoder) { e.Int64(it.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("subtotal", func(e *jx.Encoder) { Money(e, it.Subtotal) })
	})
}

// Order writes an order with its computed aggregates and the relations
// selected by inc.
func Order(e *jx.Encoder, o *order.Order, inc Include, rel Relations) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("user_id", func(e *jx.Encoder) { e.Int64(o.UserID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("date", func(e *jx.Encoder) { timestamp(e, o.CreatedAt) })
		e.Field("qty_items", func(e *jx.Encoder) { e.Int(o.QtyItems()) })
		e.Field("subtotal", func(e *jx.Encoder) { Money(e, o.Subtotal()) })
		e.Field("discount", func(e *jx.Encoder) { Money(e, o.DiscountTotal()) })
		e.Field("total", func(e *jx.Encoder) { Money(e, o.Total()) })

		if inc.Has(IncludeUser) {
			e.Field("user", func(e *jx.Encoder) {
				u, ok := rel.Users[o.UserID]
				if !ok {
					e.Null()
					return
				}
				User(e, &u)
			})
		}
		if inc.Has(IncludeItems) {
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range o.Items {
						Item(e, &o.Items[i])
					}
				})
			})
		}
		if inc.Has(IncludeDiscounts) {
			e.Field("discounts", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range o.Discounts {
						d := &o.Discounts[i]
						Discount(e, d, lookupCoupon(rel, d.CouponID))
					}
				})
			})
		}
		if inc.Has(IncludeCoupons) {
			e.Field("coupons", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, id := range o.CouponIDs() {
						if c := lookupCoupon(rel, id); c != nil {
							Coupon(e, c)
						}
					}
				})
			})
		}
	})
}

func lookupCoupon(rel Relations, id int64) *coupon.Coupon {
	c, ok := rel.Coupons[id]
	if !ok {
		return nil
	}
	return &c
}

// Product writes a catalog product.
func Product(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("price", func(e *jx.Encoder) { Money(e, p.Price) })
		e.Field("category_id", func(e *jx.Encoder) {
			if p.CategoryID == nil {
				e.Null()
				return
			}
			e.Int64(*p.CategoryID)
		})
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, p.CreatedAt) })
	})
}

// Dashboard writes the store summary.
func Dashboard(e *jx.Encoder, s *dashboard.Summary) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("users", func(e *jx.Encoder) { e.Int(s.Users) })
		e.Field("orders", func(e *jx.Encoder) { e.Int(s.Orders) })
		e.Field("products", func(e *jx.Encoder) { e.Int(s.Products) })
		e.Field("revenues", func(e *jx.Encoder) { Money(e, s.Revenue()) })
	})
}

// Category writes a product category.
func Category(e *jx.Encoder, c *category.Category) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(c.ID) })
		e.Field("title", func(e *jx.Encoder) { e.Str(c.Title) })
		e.Field("description", func(e *jx.Encoder) { e.Str(c.Description) })
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, c.CreatedAt) })
	})
}

// User writes a customer.
func User(e *jx.Encoder, u *user.User) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(u.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(u.Name) })
		e.Field("surname", func(e *jx.Encoder) { e.Str(u.Surname) })
		e.Field("email", func(e *jx.Encoder) { e.Str(u.Email) })
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, u.CreatedAt) })
	})
}
