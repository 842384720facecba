package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/product"
)

const productColumns = `id, name, description, price, category_id, created_at, updated_at`

const (
	countProductsSQL = `SELECT COUNT(*) FROM products WHERE name ILIKE $1`
	listProductsSQL  = `SELECT ` + productColumns + ` FROM products
		WHERE name ILIKE $1 ORDER BY id LIMIT $2 OFFSET $3`

	getProductByIDSQL   = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	insertProductSQL = `INSERT INTO products (name, description, price, category_id) VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	updateProductSQL = `UPDATE products SET name = $2, description = $3, price = $4, category_id = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns one page of products ordered by id.
func (r *ProductRepository) List(ctx context.Context, f product.Filter, p paging.Request) (paging.Result[product.Product], error) {
	pattern := likePattern(f.Name)
	total, err := count(ctx, r.pool, countProductsSQL, pattern)
	if err != nil {
		return paging.Result[product.Product]{}, persistErr("count products", err)
	}

	rows, err := r.pool.Query(ctx, listProductsSQL, pattern, p.PerPage, p.Offset())
	if err != nil {
		return paging.Result[product.Product]{}, persistErr("list products", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return paging.Result[product.Product]{}, persistErr("list products", err)
	}

	return paging.Result[product.Product]{
		Items:   products,
		Total:   total,
		Page:    p.Page,
		PerPage: p.PerPage,
	}, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, persistErr("get product", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, persistErr("get product", err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, persistErr("get products by ids", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, persistErr("get products by ids", err)
	}
	return products, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, insertProductSQL, p.Name, p.Description, p.Price, p.CategoryID).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return errors.Wrap(product.ErrInvalid, "unknown category id")
		}
		return persistErr("insert product", err)
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, updateProductSQL, p.ID, p.Name, p.Description, p.Price, p.CategoryID).
		Scan(&p.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return product.ErrNotFound
		case pgCode(err) == codeForeignKeyViolation:
			return errors.Wrap(product.ErrInvalid, "unknown category id")
		}
		return persistErr("update product", err)
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return product.ErrInUse
		}
		return persistErr("delete product", err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
