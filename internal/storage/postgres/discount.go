package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/order"
)

const (
	insertDiscountSQL = `INSERT INTO discounts (order_id, coupon_id, discount) VALUES ($1, $2, $3)
		RETURNING id, created_at`

	deleteDiscountSQL = `DELETE FROM discounts WHERE id = $1 AND order_id = $2
		RETURNING coupon_id`
)

var (
	_ discount.Store = (*DiscountStore)(nil)
	_ discount.Tx    = (*discountTx)(nil)
)

// DiscountStore runs the apply and remove workflows in a transaction.
type DiscountStore struct {
	pool *pgxpool.Pool
}

// NewDiscountStore returns a DiscountStore that uses the given pool.
func NewDiscountStore(pool *pgxpool.Pool) *DiscountStore {
	return &DiscountStore{pool: pool}
}

// InTx implements discount.Store.
func (s *DiscountStore) InTx(ctx context.Context, fn func(tx discount.Tx) error) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&discountTx{tx: tx})
	})
}

type discountTx struct {
	tx pgx.Tx
}

func (t *discountTx) LockOrder(ctx context.Context, orderID int64) (*order.Order, error) {
	return getOrder(ctx, t.tx, lockOrderSQL, orderID)
}

func (t *discountTx) CouponByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return getCoupon(ctx, t.tx, getCouponByCodeSQL, code)
}

func (t *discountTx) CreateDiscount(ctx context.Context, d *order.Discount) error {
	err := t.tx.QueryRow(ctx, insertDiscountSQL, d.OrderID, d.CouponID, d.Amount).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return persistErr("insert discount", err)
	}
	return nil
}

func (t *discountTx) DecrementCouponQuantity(ctx context.Context, couponID int64) (int, bool, error) {
	return decrementCoupon(ctx, t.tx, couponID)
}

func (t *discountTx) DeleteDiscount(ctx context.Context, orderID, discountID int64) (int64, error) {
	var couponID int64
	err := t.tx.QueryRow(ctx, deleteDiscountSQL, discountID, orderID).Scan(&couponID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, order.ErrDiscountNotFound
		}
		return 0, persistErr("delete discount", err)
	}
	return couponID, nil
}

func (t *discountTx) IncrementCouponQuantity(ctx context.Context, couponID int64) error {
	return incrementCoupon(ctx, t.tx, couponID)
}
