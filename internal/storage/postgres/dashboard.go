package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/dashboard"
)

const dashboardSQL = `SELECT
	(SELECT COUNT(*) FROM users),
	(SELECT COUNT(*) FROM orders),
	(SELECT COUNT(*) FROM products),
	(SELECT COALESCE(SUM(subtotal), 0) FROM order_items),
	(SELECT COALESCE(SUM(discount), 0) FROM discounts)`

var _ dashboard.Repository = (*DashboardRepository)(nil)

// DashboardRepository implements dashboard.Repository backed by PostgreSQL.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository returns a DashboardRepository that uses the given pool.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// Summary reads every total in one statement so they share a snapshot.
func (r *DashboardRepository) Summary(ctx context.Context) (*dashboard.Summary, error) {
	var s dashboard.Summary
	err := r.pool.QueryRow(ctx, dashboardSQL).Scan(&s.Users, &s.Orders, &s.Products, &s.Sales, &s.Discounts)
	if err != nil {
		return nil, persistErr("dashboard summary", err)
	}
	return &s, nil
}
