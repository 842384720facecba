// Package discount applies coupons to orders and reverses them.
package discount

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
)

// Tx is the set of reads and writes the workflows run inside one
// transaction.
type Tx interface {
	// LockOrder loads the order with items and discounts and holds its row
	// until commit, serializing concurrent applies on the same order.
	LockOrder(ctx context.Context, orderID int64) (*order.Order, error)
	// CouponByCode loads a coupon with its client and product sets.
	CouponByCode(ctx context.Context, code string) (*coupon.Coupon, error)
	// CreateDiscount inserts d and sets its ID and CreatedAt.
	CreateDiscount(ctx context.Context, d *order.Discount) error
	// DecrementCouponQuantity takes one redemption with a single conditional
	// update. ok is false when no redemption was left.
	DecrementCouponQuantity(ctx context.Context, couponID int64) (remaining int, ok bool, err error)
	// DeleteDiscount removes a discount of the order and returns the coupon
	// it was created from, or order.ErrDiscountNotFound.
	DeleteDiscount(ctx context.Context, orderID, discountID int64) (couponID int64, err error)
	IncrementCouponQuantity(ctx context.Context, couponID int64) error
}

// Store runs fn in a transaction that commits when fn returns nil and rolls
// back on any error or panic.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Applied is the result of a successful redemption.
type Applied struct {
	Order    *order.Order
	Discount order.Discount
	Coupon   *coupon.Coupon
}

// Service runs the apply and remove workflows.
type Service struct {
	store Store
	eval  *coupon.Evaluator

	tracer  trace.Tracer
	applied metric.Int64Counter
	refused metric.Int64Counter
	removed metric.Int64Counter
}

// NewService creates a discount Service instrumented with the given
// providers.
func NewService(store Store, eval *coupon.Evaluator, tp trace.TracerProvider, mp metric.MeterProvider) (*Service, error) {
	meter := mp.Meter("storefront/discount")
	s := &Service{
		store:  store,
		eval:   eval,
		tracer: tp.Tracer("storefront/discount"),
	}

	var err error
	if s.applied, err = meter.Int64Counter("discount.applied",
		metric.WithDescription("Coupons redeemed against orders"),
	); err != nil {
		return nil, errors.Wrap(err, "applied counter")
	}
	if s.refused, err = meter.Int64Counter("discount.refused",
		metric.WithDescription("Coupon applications rejected as ineligible"),
	); err != nil {
		return nil, errors.Wrap(err, "refused counter")
	}
	if s.removed, err = meter.Int64Counter("discount.removed",
		metric.WithDescription("Discounts removed from orders"),
	); err != nil {
		return nil, errors.Wrap(err, "removed counter")
	}
	return s, nil
}

// Apply redeems the coupon with the given code against the order.
//
// The order row is locked first so stacking is judged against a stable set
// of discounts. The coupon quantity is taken with a conditional decrement,
// so two requests racing for the last redemption cannot both succeed; the
// loser gets an exhausted IneligibleError and its discount row is rolled
// back with the transaction.
func (s *Service) Apply(ctx context.Context, orderID int64, code string) (*Applied, error) {
	ctx, span := s.tracer.Start(ctx, "discount.Apply",
		trace.WithAttributes(attribute.Int64("order.id", orderID)),
	)
	defer span.End()

	code = coupon.NormalizeCode(code)
	var res *Applied
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		c, err := tx.CouponByCode(ctx, code)
		if err != nil {
			return err
		}

		if err := coupon.CheckStacking(c, len(o.Discounts)); err != nil {
			return err
		}
		target := o.CouponTarget()
		if err := s.eval.Check(c, target); err != nil {
			return err
		}

		d := order.Discount{
			OrderID:  o.ID,
			CouponID: c.ID,
			Amount:   coupon.Compute(c, target),
		}
		if err := tx.CreateDiscount(ctx, &d); err != nil {
			return errors.Wrap(err, "create discount")
		}

		remaining, ok, err := tx.DecrementCouponQuantity(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "decrement coupon")
		}
		if !ok {
			return &coupon.IneligibleError{Code: c.Code, Reason: coupon.ReasonExhausted}
		}
		c.Quantity = remaining

		o.Discounts = append(o.Discounts, d)
		res = &Applied{Order: o, Discount: d, Coupon: c}
		return nil
	})

	lg := zctx.From(ctx).With(zap.Int64("order_id", orderID), zap.String("code", code))
	if err != nil {
		if ie, ok := coupon.IsIneligible(err); ok {
			s.refused.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(ie.Reason))))
			span.SetAttributes(attribute.String("discount.refused", string(ie.Reason)))
			lg.Info("Coupon refused", zap.String("reason", string(ie.Reason)))
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.applied.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(res.Coupon.Type))))
	span.SetAttributes(
		attribute.Int64("discount.id", res.Discount.ID),
		attribute.String("discount.amount", res.Discount.Amount.StringFixed(2)),
	)
	lg.Info("Coupon applied",
		zap.Int64("discount_id", res.Discount.ID),
		zap.String("amount", res.Discount.Amount.StringFixed(2)),
		zap.Int("remaining", res.Coupon.Quantity),
	)
	return res, nil
}

// Remove deletes a discount from the order and gives its redemption back to
// the coupon. Removing the same discount twice returns
// order.ErrDiscountNotFound without touching the coupon again.
func (s *Service) Remove(ctx context.Context, orderID, discountID int64) error {
	ctx, span := s.tracer.Start(ctx, "discount.Remove",
		trace.WithAttributes(
			attribute.Int64("order.id", orderID),
			attribute.Int64("discount.id", discountID),
		),
	)
	defer span.End()

	var couponID int64
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		if couponID, err = tx.DeleteDiscount(ctx, orderID, discountID); err != nil {
			return err
		}
		if err := tx.IncrementCouponQuantity(ctx, couponID); err != nil {
			return errors.Wrap(err, "increment coupon")
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, order.ErrDiscountNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}

	s.removed.Add(ctx, 1)
	zctx.From(ctx).Info("Discount removed",
		zap.Int64("order_id", orderID),
		zap.Int64("discount_id", discountID),
		zap.Int64("coupon_id", couponID),
	)
	return nil
}

