package coupon

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when no coupon matches the id or code.
	ErrNotFound = errors.New("coupon not found")
	// ErrCodeTaken is returned when another coupon already uses the code.
	ErrCodeTaken = errors.New("coupon code already exists")
	// ErrInUse is returned when deleting a coupon that historical orders
	// still reference through their discounts.
	ErrInUse = errors.New("coupon is referenced by orders")
	// ErrInvalid wraps coupon attribute validation failures.
	ErrInvalid = errors.New("invalid coupon")
)

// Reason classifies why a coupon cannot be applied to an order.
type Reason string

const (
	ReasonExpired        Reason = "expired"
	ReasonExhausted      Reason = "exhausted"
	ReasonWrongScope     Reason = "wrong_scope"
	ReasonAlreadyApplied Reason = "already_applied"
)

// Message returns a caller-facing description of the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonExpired:
		return "coupon is outside its validity window"
	case ReasonExhausted:
		return "coupon has no redemptions left"
	case ReasonWrongScope:
		return "coupon does not apply to this client or these products"
	case ReasonAlreadyApplied:
		return "order already has a discount and this coupon is not recursive"
	default:
		return "coupon could not be applied"
	}
}

// IneligibleError reports a coupon that exists but fails an eligibility
// check for the given order.
type IneligibleError struct {
	Code   string
	Reason Reason
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("coupon %s not applicable: %s", e.Code, e.Reason)
}

// IsIneligible reports whether err carries an IneligibleError and returns it.
func IsIneligible(err error) (*IneligibleError, bool) {
	var ie *IneligibleError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
