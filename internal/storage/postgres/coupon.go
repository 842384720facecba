package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/paging"
)

const couponColumns = `id, code, discount, type, valid_from, valid_until, quantity, recursive, can_use_for, created_at, updated_at`

const (
	countCouponsSQL = `SELECT COUNT(*) FROM coupons WHERE code ILIKE $1`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE code ILIKE $1 ORDER BY id DESC LIMIT $2 OFFSET $3`

	getCouponSQL       = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	lockCouponSQL      = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1 FOR UPDATE`
	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`
	getCouponsByIDsSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = ANY($1) ORDER BY id`

	couponClientsSQL  = `SELECT coupon_id, user_id FROM coupon_user WHERE coupon_id = ANY($1) ORDER BY user_id`
	couponProductsSQL = `SELECT coupon_id, product_id FROM coupon_product WHERE coupon_id = ANY($1) ORDER BY product_id`

	insertCouponSQL = `INSERT INTO coupons (code, discount, type, valid_from, valid_until, quantity, recursive, can_use_for)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	ingestCouponSQL = `INSERT INTO coupons (code, discount, type, quantity, can_use_for)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO NOTHING`

	updateCouponSQL = `UPDATE coupons SET code = $2, discount = $3, type = $4, valid_from = $5, valid_until = $6,
		quantity = $7, recursive = $8, can_use_for = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	deleteCouponClientsSQL  = `DELETE FROM coupon_user WHERE coupon_id = $1`
	insertCouponClientsSQL  = `INSERT INTO coupon_user (coupon_id, user_id) SELECT $1, UNNEST($2::BIGINT[])`
	deleteCouponProductsSQL = `DELETE FROM coupon_product WHERE coupon_id = $1`
	insertCouponProductsSQL = `INSERT INTO coupon_product (coupon_id, product_id) SELECT $1, UNNEST($2::BIGINT[])`

	countCouponDiscountsSQL = `SELECT COUNT(*) FROM discounts WHERE coupon_id = $1`
	deleteCouponSQL         = `DELETE FROM coupons WHERE id = $1`

	decrementCouponSQL = `UPDATE coupons SET quantity = quantity - 1, updated_at = NOW()
		WHERE id = $1 AND quantity > 0
		RETURNING quantity`
	incrementCouponSQL = `UPDATE coupons SET quantity = quantity + 1, updated_at = NOW() WHERE id = $1`
)

var (
	_ coupon.Repository = (*CouponRepository)(nil)
	_ coupon.Store      = (*CouponStore)(nil)
	_ coupon.Tx         = (*couponTx)(nil)
)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// List returns one page of coupons, newest first, with their sets.
func (r *CouponRepository) List(ctx context.Context, f coupon.Filter, p paging.Request) (paging.Result[coupon.Coupon], error) {
	pattern := likePattern(coupon.NormalizeCode(f.Code))
	total, err := count(ctx, r.pool, countCouponsSQL, pattern)
	if err != nil {
		return paging.Result[coupon.Coupon]{}, persistErr("count coupons", err)
	}

	rows, err := r.pool.Query(ctx, listCouponsSQL, pattern, p.PerPage, p.Offset())
	if err != nil {
		return paging.Result[coupon.Coupon]{}, persistErr("list coupons", err)
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return paging.Result[coupon.Coupon]{}, persistErr("list coupons", err)
	}
	if err := attachCouponSets(ctx, r.pool, coupons); err != nil {
		return paging.Result[coupon.Coupon]{}, err
	}

	return paging.Result[coupon.Coupon]{
		Items:   coupons,
		Total:   total,
		Page:    p.Page,
		PerPage: p.PerPage,
	}, nil
}

// Get returns a coupon by id.
func (r *CouponRepository) Get(ctx context.Context, id int64) (*coupon.Coupon, error) {
	return getCoupon(ctx, r.pool, getCouponSQL, id)
}

// GetByCode returns a coupon by its normalized code.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return getCoupon(ctx, r.pool, getCouponByCodeSQL, code)
}

// GetByIDs returns the coupons matching any of the ids, ordered by id.
func (r *CouponRepository) GetByIDs(ctx context.Context, ids []int64) ([]coupon.Coupon, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, getCouponsByIDsSQL, ids)
	if err != nil {
		return nil, persistErr("get coupons by ids", err)
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, persistErr("get coupons by ids", err)
	}
	if err := attachCouponSets(ctx, r.pool, coupons); err != nil {
		return nil, err
	}
	return coupons, nil
}

// Ingest inserts unrestricted coupons in one batch, skipping codes that
// already exist. It returns the number of rows inserted.
func (r *CouponRepository) Ingest(ctx context.Context, coupons []coupon.Coupon) (int, error) {
	if len(coupons) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range coupons {
		batch.Queue(ingestCouponSQL, c.Code, c.Discount, string(c.Type), c.Quantity, string(coupon.ScopeAll))
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	inserted := 0
	for range coupons {
		tag, err := br.Exec()
		if err != nil {
			return inserted, persistErr("ingest coupons", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// CouponStore runs coupon writes in a transaction.
type CouponStore struct {
	pool *pgxpool.Pool
}

// NewCouponStore returns a CouponStore that uses the given pool.
func NewCouponStore(pool *pgxpool.Pool) *CouponStore {
	return &CouponStore{pool: pool}
}

// InTx implements coupon.Store.
func (s *CouponStore) InTx(ctx context.Context, fn func(tx coupon.Tx) error) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&couponTx{tx: tx})
	})
}

type couponTx struct {
	tx pgx.Tx
}

func (t *couponTx) Lock(ctx context.Context, id int64) (*coupon.Coupon, error) {
	return getCoupon(ctx, t.tx, lockCouponSQL, id)
}

func (t *couponTx) Create(ctx context.Context, c *coupon.Coupon) error {
	err := t.tx.QueryRow(ctx, insertCouponSQL,
		c.Code, c.Discount, string(c.Type), c.ValidFrom, c.ValidUntil,
		c.Quantity, c.Recursive, string(c.Scope),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return coupon.ErrCodeTaken
		}
		return persistErr("insert coupon", err)
	}
	return nil
}

func (t *couponTx) Update(ctx context.Context, c *coupon.Coupon) error {
	err := t.tx.QueryRow(ctx, updateCouponSQL,
		c.ID, c.Code, c.Discount, string(c.Type), c.ValidFrom, c.ValidUntil,
		c.Quantity, c.Recursive, string(c.Scope),
	).Scan(&c.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return coupon.ErrNotFound
		case pgCode(err) == codeUniqueViolation:
			return coupon.ErrCodeTaken
		}
		return persistErr("update coupon", err)
	}
	return nil
}

func (t *couponTx) SyncClients(ctx context.Context, couponID int64, userIDs []int64) error {
	return syncSet(ctx, t.tx, deleteCouponClientsSQL, insertCouponClientsSQL, couponID, userIDs, "unknown user id")
}

func (t *couponTx) SyncProducts(ctx context.Context, couponID int64, productIDs []int64) error {
	return syncSet(ctx, t.tx, deleteCouponProductsSQL, insertCouponProductsSQL, couponID, productIDs, "unknown product id")
}

func (t *couponTx) CountDiscounts(ctx context.Context, couponID int64) (int, error) {
	n, err := count(ctx, t.tx, countCouponDiscountsSQL, couponID)
	if err != nil {
		return 0, persistErr("count coupon discounts", err)
	}
	return n, nil
}

func (t *couponTx) Delete(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return coupon.ErrInUse
		}
		return persistErr("delete coupon", err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// syncSet replaces every row of a coupon pivot table.
func syncSet(ctx context.Context, q querier, deleteSQL, insertSQL string, couponID int64, ids []int64, unknown string) error {
	if _, err := q.Exec(ctx, deleteSQL, couponID); err != nil {
		return persistErr("clear coupon set", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := q.Exec(ctx, insertSQL, couponID, lo.Uniq(ids)); err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return errors.Wrap(coupon.ErrInvalid, unknown)
		}
		return persistErr("fill coupon set", err)
	}
	return nil
}

func decrementCoupon(ctx context.Context, q querier, couponID int64) (int, bool, error) {
	var remaining int
	err := q.QueryRow(ctx, decrementCouponSQL, couponID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, persistErr("decrement coupon", err)
	}
	return remaining, true, nil
}

func incrementCoupon(ctx context.Context, q querier, couponID int64) error {
	tag, err := q.Exec(ctx, incrementCouponSQL, couponID)
	if err != nil {
		return persistErr("increment coupon", err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func getCoupon(ctx context.Context, q querier, sql string, arg any) (*coupon.Coupon, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, persistErr("get coupon", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, persistErr("get coupon", err)
	}

	one := []coupon.Coupon{c}
	if err := attachCouponSets(ctx, q, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// attachCouponSets loads client and product sets for the coupons with one
// query per pivot table.
func attachCouponSets(ctx context.Context, q querier, coupons []coupon.Coupon) error {
	if len(coupons) == 0 {
		return nil
	}
	ids := lo.Map(coupons, func(c coupon.Coupon, _ int) int64 { return c.ID })

	clients, err := loadPairs(ctx, q, couponClientsSQL, ids)
	if err != nil {
		return persistErr("load coupon clients", err)
	}
	products, err := loadPairs(ctx, q, couponProductsSQL, ids)
	if err != nil {
		return persistErr("load coupon products", err)
	}

	for i := range coupons {
		coupons[i].ClientIDs = clients[coupons[i].ID]
		coupons[i].ProductIDs = products[coupons[i].ID]
	}
	return nil
}

// loadPairs groups (owner, member) rows by owner.
func loadPairs(ctx context.Context, q querier, sql string, ids []int64) (map[int64][]int64, error) {
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]int64)
	var owner, member int64
	_, err = pgx.ForEachRow(rows, []any{&owner, &member}, func() error {
		out[owner] = append(out[owner], member)
		return nil
	})
	return out, err
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c          coupon.Coupon
		typ, scope string
		from, till *time.Time
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Discount, &typ, &from, &till,
		&c.Quantity, &c.Recursive, &scope, &c.CreatedAt, &c.UpdatedAt,
	)
	c.Type = coupon.Type(typ)
	c.Scope = coupon.Scope(scope)
	c.ValidFrom, c.ValidUntil = from, till
	return c, err
}
