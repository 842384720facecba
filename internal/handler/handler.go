// Package handler serves the storefront admin API over chi.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/dashboard"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// CouponService is the coupon administration used by the handler.
type CouponService interface {
	List(ctx context.Context, f coupon.Filter, p paging.Request) (paging.Result[coupon.Coupon], error)
	Get(ctx context.Context, id int64) (*coupon.Coupon, error)
	Create(ctx context.Context, c coupon.Coupon) (*coupon.Coupon, error)
	Update(ctx context.Context, id int64, p coupon.Patch) (*coupon.Coupon, error)
	Delete(ctx context.Context, id int64) error
}

// OrderService is the order administration used by the handler.
type OrderService interface {
	List(ctx context.Context, f order.Filter, p paging.Request) (paging.Result[order.Order], error)
	Get(ctx context.Context, id int64) (*order.Order, error)
	Create(ctx context.Context, in order.CreateInput) (*order.Order, error)
	Update(ctx context.Context, id int64, p order.Patch) (*order.Order, error)
	Delete(ctx context.Context, id int64) error
}

// DiscountService applies and removes coupons on orders.
type DiscountService interface {
	Apply(ctx context.Context, orderID int64, code string) (*discount.Applied, error)
	Remove(ctx context.Context, orderID, discountID int64) error
}

// CouponLookup resolves the coupons referenced by order discounts.
type CouponLookup interface {
	GetByIDs(ctx context.Context, ids []int64) ([]coupon.Coupon, error)
}

// Deps are the services and repositories behind the routes.
type Deps struct {
	Coupons    CouponService
	Orders     OrderService
	Discounts  DiscountService
	Products   product.Repository
	Categories category.Repository
	Users      user.Repository
	Dashboard  dashboard.Repository
	// CouponLookup loads coupons embedded in order responses.
	CouponLookup CouponLookup
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// Throttle limits coupon application attempts. Nil disables it.
	Throttle *httpmiddleware.Throttler
}

// Handler implements the admin routes.
type Handler struct {
	Deps

	throttle httpmiddleware.Middleware
	validate *validator.Validate
}

// New constructs a Handler.
func New(cfg Config, deps Deps) *Handler {
	h := &Handler{
		Deps:     deps,
		validate: newValidator(),
		throttle: func(next http.Handler) http.Handler { return next },
	}
	if cfg.Throttle != nil {
		h.throttle = cfg.Throttle.Middleware()
	}
	return h
}

// Routes returns the admin router, meant to be mounted under /v1/admin.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/dashboard", h.showDashboard)

	r.Route("/coupons", func(r chi.Router) {
		r.Get("/", h.listCoupons)
		r.Post("/", h.createCoupon)
		r.Get("/{id}", h.showCoupon)
		r.Put("/{id}", h.updateCoupon)
		r.Delete("/{id}", h.deleteCoupon)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Get("/{id}", h.showOrder)
		r.Put("/{id}", h.updateOrder)
		r.Delete("/{id}", h.deleteOrder)

		r.With(h.throttle).Post("/{id}/discount", h.applyDiscount)
		r.Delete("/{id}/discount", h.removeDiscount)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Get("/{id}", h.showProduct)
		r.Put("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
	})

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.listCategories)
		r.Post("/", h.createCategory)
		r.Get("/{id}", h.showCategory)
		r.Put("/{id}", h.updateCategory)
		r.Delete("/{id}", h.deleteCategory)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Get("/{id}", h.showUser)
		r.Put("/{id}", h.updateUser)
		r.Delete("/{id}", h.deleteUser)
	})

	return r
}
