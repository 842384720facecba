package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/transform"
)

type applyRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type removeRequest struct {
	DiscountID int64 `json:"discount_id" validate:"required,gt=0"`
}

// applyDiscount redeems {code} against the order and answers with the
// updated order, the new discount and a confirmation message.
func (h *Handler) applyDiscount(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req applyRequest
	err = decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		var err error
		req.Code, err = d.Str()
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		fail(w, r, err)
		return
	}

	applied, err := h.Discounts.Apply(r.Context(), orderID, req.Code)
	if err != nil {
		fail(w, r, err)
		return
	}

	inc := transform.IncludeItems | transform.IncludeDiscounts | transform.IncludeCoupons
	rel, err := h.relations(r.Context(), inc, applied.Order)
	if err != nil {
		fail(w, r, err)
		return
	}
	if rel.Coupons == nil {
		rel.Coupons = make(map[int64]coupon.Coupon)
	}
	rel.Coupons[applied.Coupon.ID] = *applied.Coupon

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("data", func(e *jx.Encoder) { transform.Order(e, applied.Order, inc, rel) })
			e.Field("discount", func(e *jx.Encoder) {
				transform.Discount(e, &applied.Discount, applied.Coupon)
			})
			e.Field("info", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
					e.Field("message", func(e *jx.Encoder) { e.Str("coupon " + applied.Coupon.Code + " applied") })
				})
			})
		})
	})
}

// removeDiscount deletes {discount_id} from the order.
func (h *Handler) removeDiscount(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req removeRequest
	err = decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "discount_id" {
			return d.Skip()
		}
		var err error
		req.DiscountID, err = d.Int64()
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		fail(w, r, err)
		return
	}

	if err := h.Discounts.Remove(r.Context(), orderID, req.DiscountID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
