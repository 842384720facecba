package category

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/paging"
)

var (
	// ErrNotFound is returned when a requested category does not exist.
	ErrNotFound = errors.New("category not found")
	// ErrInvalid wraps category validation failures.
	ErrInvalid = errors.New("invalid category")
)

// Category groups products in the catalog.
type Category struct {
	ID          int64
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (c *Category) Validate() error {
	if c.Title == "" {
		return errors.Wrap(ErrInvalid, "title is required")
	}
	return nil
}

// Filter narrows a category listing by a case-insensitive title substring.
type Filter struct {
	Title string
}

// Repository defines persistence operations for categories.
type Repository interface {
	List(ctx context.Context, f Filter, p paging.Request) (paging.Result[Category], error)
	GetByID(ctx context.Context, id int64) (*Category, error)
	Create(ctx context.Context, c *Category) error
	Update(ctx context.Context, c *Category) error
	Delete(ctx context.Context, id int64) error
}
