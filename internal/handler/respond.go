package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/storage/postgres"
)

// Error kinds rendered in the "kind" field of error bodies.
const (
	kindNotFound    = "not_found"
	kindIneligible  = "ineligible"
	kindValidation  = "validation"
	kindConflict    = "conflict"
	kindPersistence = "persistence"
	kindInternal    = "internal"
)

func writeJSON(w http.ResponseWriter, status int, body func(e *jx.Encoder)) {
	var e jx.Encoder
	body(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeData wraps a single resource as {"data": ...}.
func writeData(w http.ResponseWriter, status int, data func(e *jx.Encoder)) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("data", data)
		})
	})
}

type apiError struct {
	status  int
	kind    string
	code    string
	message string
}

var (
	notFound = []error{
		coupon.ErrNotFound,
		order.ErrNotFound,
		order.ErrDiscountNotFound,
		product.ErrNotFound,
		category.ErrNotFound,
		user.ErrNotFound,
	}
	conflicts = []error{
		coupon.ErrCodeTaken,
		coupon.ErrInUse,
		product.ErrInUse,
		user.ErrEmailTaken,
		user.ErrInUse,
	}
	invalid = []error{
		coupon.ErrInvalid,
		order.ErrInvalid,
		product.ErrInvalid,
		category.ErrInvalid,
		user.ErrInvalid,
	}
)

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// classify maps a service error to its response.
func classify(err error) apiError {
	if ie, ok := coupon.IsIneligible(err); ok {
		return apiError{
			status:  http.StatusBadRequest,
			kind:    kindIneligible,
			code:    string(ie.Reason),
			message: ie.Reason.Message(),
		}
	}

	var (
		re  *requestError
		pnf *order.ProductNotFoundError
		iq  *order.InvalidQuantityError
	)
	switch {
	case errors.As(err, &re):
		return apiError{status: http.StatusBadRequest, kind: kindValidation, message: re.msg}
	case isAny(err, notFound):
		return apiError{status: http.StatusNotFound, kind: kindNotFound, message: err.Error()}
	case isAny(err, conflicts):
		return apiError{status: http.StatusConflict, kind: kindConflict, message: err.Error()}
	case isAny(err, invalid), errors.As(err, &pnf), errors.As(err, &iq):
		return apiError{status: http.StatusUnprocessableEntity, kind: kindValidation, message: err.Error()}
	case postgres.IsPersistence(err):
		return apiError{status: http.StatusInternalServerError, kind: kindPersistence, message: "storage failure"}
	default:
		return apiError{status: http.StatusInternalServerError, kind: kindInternal, message: "internal server error"}
	}
}

// fail writes the error body for err and logs server-side failures.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	ae := classify(err)
	if ae.status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("kind", ae.kind),
			zap.Error(err),
		)
	}
	writeJSON(w, ae.status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("status", func(e *jx.Encoder) { e.Str("error") })
			e.Field("kind", func(e *jx.Encoder) { e.Str(ae.kind) })
			if ae.code != "" {
				e.Field("code", func(e *jx.Encoder) { e.Str(ae.code) })
			}
			e.Field("message", func(e *jx.Encoder) { e.Str(ae.message) })
		})
	})
}
