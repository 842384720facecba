package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/user"
)

const userColumns = `id, name, surname, email, created_at, updated_at`

const (
	userFilter = `WHERE name ILIKE $1 OR surname ILIKE $1 OR email ILIKE $1`

	countUsersSQL = `SELECT COUNT(*) FROM users ` + userFilter
	listUsersSQL  = `SELECT ` + userColumns + ` FROM users ` + userFilter + `
		ORDER BY id LIMIT $2 OFFSET $3`
	getUserSQL    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	getUsersSQL   = `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1) ORDER BY id`
	insertUserSQL = `INSERT INTO users (name, surname, email) VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`
	updateUserSQL = `UPDATE users SET name = $2, surname = $3, email = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	deleteUserSQL = `DELETE FROM users WHERE id = $1`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) List(ctx context.Context, f user.Filter, p paging.Request) (paging.Result[user.User], error) {
	pattern := likePattern(f.Query)
	total, err := count(ctx, r.pool, countUsersSQL, pattern)
	if err != nil {
		return paging.Result[user.User]{}, persistErr("count users", err)
	}

	rows, err := r.pool.Query(ctx, listUsersSQL, pattern, p.PerPage, p.Offset())
	if err != nil {
		return paging.Result[user.User]{}, persistErr("list users", err)
	}
	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return paging.Result[user.User]{}, persistErr("list users", err)
	}

	return paging.Result[user.User]{Items: users, Total: total, Page: p.Page, PerPage: p.PerPage}, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	rows, err := r.pool.Query(ctx, getUserSQL, id)
	if err != nil {
		return nil, persistErr("get user", err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, persistErr("get user", err)
	}
	return &u, nil
}

// GetByIDs returns users matching any of the given IDs.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []int64) ([]user.User, error) {
	rows, err := r.pool.Query(ctx, getUsersSQL, ids)
	if err != nil {
		return nil, persistErr("get users by ids", err)
	}
	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, persistErr("get users by ids", err)
	}
	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	err := r.pool.QueryRow(ctx, insertUserSQL, u.Name, u.Surname, u.Email).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if pgCode(err) == codeUniqueViolation {
		return user.ErrEmailTaken
	}
	return persistErr("insert user", err)
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	err := r.pool.QueryRow(ctx, updateUserSQL, u.ID, u.Name, u.Surname, u.Email).Scan(&u.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return user.ErrNotFound
	case pgCode(err) == codeUniqueViolation:
		return user.ErrEmailTaken
	}
	return persistErr("update user", err)
}

func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteUserSQL, id)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return user.ErrInUse
		}
		return persistErr("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Name, &u.Surname, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
