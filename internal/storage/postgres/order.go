package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/paging"
)

const orderColumns = `id, user_id, status, created_at, updated_at`

// Status and id filters combine with OR; with neither set every order
// matches.
const orderFilter = `WHERE ($1::TEXT = '' AND $2::TEXT = '')
	OR ($1::TEXT <> '' AND status = $1)
	OR ($2::TEXT <> '' AND id::TEXT LIKE $3)`

const (
	countOrdersSQL = `SELECT COUNT(*) FROM orders ` + orderFilter

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ` + orderFilter + `
		ORDER BY id DESC LIMIT $4 OFFSET $5`

	getOrderSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	lockOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	orderItemsSQL = `SELECT id, order_id, product_id, quantity, subtotal
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`
	orderDiscountsSQL = `SELECT id, order_id, coupon_id, discount, created_at
		FROM discounts WHERE order_id = ANY($1) ORDER BY id`

	insertOrderSQL = `INSERT INTO orders (user_id, status) VALUES ($1, $2)
		RETURNING id, created_at, updated_at`
	updateOrderSQL = `UPDATE orders SET user_id = $2, status = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	deleteOrderItemsSQL = `DELETE FROM order_items WHERE order_id = $1`
	insertOrderItemSQL  = `INSERT INTO order_items (order_id, product_id, quantity, subtotal)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	deleteOrderDiscountsSQL = `DELETE FROM discounts WHERE order_id = $1
		RETURNING id, order_id, coupon_id, discount, created_at`
)

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ order.Store      = (*OrderStore)(nil)
	_ order.Tx         = (*orderTx)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// List returns one page of orders, newest first, with items and discounts.
func (r *OrderRepository) List(ctx context.Context, f order.Filter, p paging.Request) (paging.Result[order.Order], error) {
	args := []any{string(f.Status), f.ID, likePattern(f.ID)}
	total, err := count(ctx, r.pool, countOrdersSQL, args...)
	if err != nil {
		return paging.Result[order.Order]{}, persistErr("count orders", err)
	}

	rows, err := r.pool.Query(ctx, listOrdersSQL, append(args, p.PerPage, p.Offset())...)
	if err != nil {
		return paging.Result[order.Order]{}, persistErr("list orders", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return paging.Result[order.Order]{}, persistErr("list orders", err)
	}
	if err := attachOrderDetails(ctx, r.pool, orders); err != nil {
		return paging.Result[order.Order]{}, err
	}

	return paging.Result[order.Order]{
		Items:   orders,
		Total:   total,
		Page:    p.Page,
		PerPage: p.PerPage,
	}, nil
}

// Get returns the order with its items and discounts.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	return getOrder(ctx, r.pool, getOrderSQL, id)
}

// OrderStore runs order writes in a transaction.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// InTx implements order.Store.
func (s *OrderStore) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&orderTx{tx: tx})
	})
}

type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) Lock(ctx context.Context, id int64) (*order.Order, error) {
	return getOrder(ctx, t.tx, lockOrderSQL, id)
}

func (t *orderTx) Create(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, insertOrderSQL, o.UserID, string(o.Status)).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return errors.Wrap(order.ErrInvalid, "unknown user id")
		}
		return persistErr("insert order", err)
	}
	return nil
}

func (t *orderTx) Update(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, updateOrderSQL, o.ID, o.UserID, string(o.Status)).Scan(&o.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return order.ErrNotFound
		case pgCode(err) == codeForeignKeyViolation:
			return errors.Wrap(order.ErrInvalid, "unknown user id")
		}
		return persistErr("update order", err)
	}
	return nil
}

func (t *orderTx) ReplaceItems(ctx context.Context, orderID int64, items []order.Item) error {
	if _, err := t.tx.Exec(ctx, deleteOrderItemsSQL, orderID); err != nil {
		return persistErr("clear order items", err)
	}
	for i := range items {
		it := &items[i]
		it.OrderID = orderID
		err := t.tx.QueryRow(ctx, insertOrderItemSQL, orderID, it.ProductID, it.Quantity, it.Subtotal).Scan(&it.ID)
		if err != nil {
			if pgCode(err) == codeForeignKeyViolation {
				return errors.Wrapf(order.ErrInvalid, "unknown product id %d", it.ProductID)
			}
			return persistErr("insert order item", err)
		}
	}
	return nil
}

func (t *orderTx) DeleteDiscounts(ctx context.Context, orderID int64) ([]order.Discount, error) {
	rows, err := t.tx.Query(ctx, deleteOrderDiscountsSQL, orderID)
	if err != nil {
		return nil, persistErr("delete order discounts", err)
	}
	discounts, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return nil, persistErr("delete order discounts", err)
	}
	return discounts, nil
}

func (t *orderTx) IncrementCouponQuantity(ctx context.Context, couponID int64) error {
	return incrementCoupon(ctx, t.tx, couponID)
}

func (t *orderTx) Delete(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return persistErr("delete order", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func getOrder(ctx context.Context, q querier, sql string, id int64) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, persistErr("get order", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, persistErr("get order", err)
	}

	one := []order.Order{o}
	if err := attachOrderDetails(ctx, q, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// attachOrderDetails loads items and discounts for the orders with one
// query each.
func attachOrderDetails(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := lo.Map(orders, func(o order.Order, _ int) int64 { return o.ID })

	rows, err := q.Query(ctx, orderItemsSQL, ids)
	if err != nil {
		return persistErr("load order items", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return persistErr("load order items", err)
	}

	rows, err = q.Query(ctx, orderDiscountsSQL, ids)
	if err != nil {
		return persistErr("load order discounts", err)
	}
	discounts, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return persistErr("load order discounts", err)
	}

	itemsByOrder := lo.GroupBy(items, func(it order.Item) int64 { return it.OrderID })
	discountsByOrder := lo.GroupBy(discounts, func(d order.Discount) int64 { return d.OrderID })
	for i := range orders {
		orders[i].Items = itemsByOrder[orders[i].ID]
		orders[i].Discounts = discountsByOrder[orders[i].ID]
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &status, &o.CreatedAt, &o.UpdatedAt)
	o.Status = order.Status(status)
	return o, err
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Subtotal)
	return it, err
}

func scanDiscount(row pgx.CollectableRow) (order.Discount, error) {
	var d order.Discount
	err := row.Scan(&d.ID, &d.OrderID, &d.CouponID, &d.Amount, &d.CreatedAt)
	return d, err
}
