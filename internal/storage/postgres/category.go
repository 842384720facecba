package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/paging"
)

const categoryColumns = `id, title, description, created_at, updated_at`

const (
	countCategoriesSQL = `SELECT COUNT(*) FROM categories WHERE title ILIKE $1`
	listCategoriesSQL  = `SELECT ` + categoryColumns + ` FROM categories
		WHERE title ILIKE $1 ORDER BY id LIMIT $2 OFFSET $3`
	getCategorySQL    = `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`
	insertCategorySQL = `INSERT INTO categories (title, description) VALUES ($1, $2)
		RETURNING id, created_at, updated_at`
	updateCategorySQL = `UPDATE categories SET title = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	deleteCategorySQL = `DELETE FROM categories WHERE id = $1`
)

var _ category.Repository = (*CategoryRepository)(nil)

// CategoryRepository implements category.Repository backed by PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

func (r *CategoryRepository) List(ctx context.Context, f category.Filter, p paging.Request) (paging.Result[category.Category], error) {
	pattern := likePattern(f.Title)
	total, err := count(ctx, r.pool, countCategoriesSQL, pattern)
	if err != nil {
		return paging.Result[category.Category]{}, persistErr("count categories", err)
	}

	rows, err := r.pool.Query(ctx, listCategoriesSQL, pattern, p.PerPage, p.Offset())
	if err != nil {
		return paging.Result[category.Category]{}, persistErr("list categories", err)
	}
	items, err := pgx.CollectRows(rows, scanCategory)
	if err != nil {
		return paging.Result[category.Category]{}, persistErr("list categories", err)
	}

	return paging.Result[category.Category]{Items: items, Total: total, Page: p.Page, PerPage: p.PerPage}, nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*category.Category, error) {
	rows, err := r.pool.Query(ctx, getCategorySQL, id)
	if err != nil {
		return nil, persistErr("get category", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, category.ErrNotFound
		}
		return nil, persistErr("get category", err)
	}
	return &c, nil
}

func (r *CategoryRepository) Create(ctx context.Context, c *category.Category) error {
	err := r.pool.QueryRow(ctx, insertCategorySQL, c.Title, c.Description).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return persistErr("insert category", err)
}

func (r *CategoryRepository) Update(ctx context.Context, c *category.Category) error {
	err := r.pool.QueryRow(ctx, updateCategorySQL, c.ID, c.Title, c.Description).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return category.ErrNotFound
	}
	return persistErr("update category", err)
}

// Delete removes the category. Its products keep existing without one.
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteCategorySQL, id)
	if err != nil {
		return persistErr("delete category", err)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrNotFound
	}
	return nil
}

func scanCategory(row pgx.CollectableRow) (category.Category, error) {
	var c category.Category
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
