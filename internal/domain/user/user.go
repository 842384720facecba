package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/paging"
)

var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when another user already has the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInUse is returned when deleting a user that owns orders.
	ErrInUse = errors.New("user has orders")
	// ErrInvalid wraps user validation failures.
	ErrInvalid = errors.New("invalid user")
)

// User is a customer. Coupons restricted to clients reference users.
type User struct {
	ID        int64
	Name      string
	Surname   string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) Validate() error {
	if u.Name == "" {
		return errors.Wrap(ErrInvalid, "name is required")
	}
	if !strings.Contains(u.Email, "@") {
		return errors.Wrap(ErrInvalid, "email is malformed")
	}
	return nil
}

// Filter narrows a user listing. Query matches name, surname or email.
type Filter struct {
	Query string
}

// Repository defines persistence operations for users.
type Repository interface {
	List(ctx context.Context, f Filter, p paging.Request) (paging.Result[User], error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByIDs(ctx context.Context, ids []int64) ([]User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id int64) error
}
