package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/transform"
)

// couponRequest is the body of coupon create and update. Absent fields are
// nil; on create the domain rejects what is missing.
type couponRequest struct {
	Code       *string          `json:"code" validate:"omitempty,min=2,max=64"`
	Discount   *decimal.Decimal `json:"discount" validate:"omitempty,gte=0"`
	Type       *string          `json:"type" validate:"omitempty,oneof=percent currency free"`
	ValidFrom  *time.Time       `json:"valid_from"`
	ValidUntil *time.Time       `json:"valid_until"`
	Quantity   *int             `json:"quantity" validate:"omitempty,gte=0,lte=2147483647"`
	Recursive  *bool            `json:"recursive"`
	Users      []int64          `json:"users" validate:"omitempty,dive,gt=0"`
	Products   []int64          `json:"products" validate:"omitempty,dive,gt=0"`
}

func (h *Handler) decodeCoupon(w http.ResponseWriter, r *http.Request) (*couponRequest, error) {
	var req couponRequest
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = nullable(d, readString)
		case "discount":
			req.Discount, err = nullable(d, readDecimal)
		case "type":
			req.Type, err = nullable(d, readString)
		case "valid_from":
			req.ValidFrom, err = nullable(d, readTime)
		case "valid_until":
			req.ValidUntil, err = nullable(d, readUntil)
		case "quantity":
			req.Quantity, err = nullable(d, readInt)
		case "recursive":
			req.Recursive, err = nullable(d, readBool)
		case "users":
			req.Users, err = readIDs(d)
		case "products":
			req.Products, err = readIDs(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := h.check(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (req *couponRequest) coupon() coupon.Coupon {
	c := coupon.Coupon{
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
		ClientIDs:  req.Users,
		ProductIDs: req.Products,
	}
	if req.Code != nil {
		c.Code = *req.Code
	}
	if req.Discount != nil {
		c.Discount = *req.Discount
	}
	if req.Type != nil {
		c.Type = coupon.Type(*req.Type)
	}
	if req.Quantity != nil {
		c.Quantity = *req.Quantity
	}
	if req.Recursive != nil {
		c.Recursive = *req.Recursive
	}
	return c
}

func (req *couponRequest) patch() coupon.Patch {
	p := coupon.Patch{
		Code:       req.Code,
		Discount:   req.Discount,
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
		Quantity:   req.Quantity,
		Recursive:  req.Recursive,
		ClientIDs:  req.Users,
		ProductIDs: req.Products,
	}
	if req.Type != nil {
		t := coupon.Type(*req.Type)
		p.Type = &t
	}
	return p
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	p, err := pageRequest(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.Coupons.List(r.Context(), coupon.Filter{Code: r.URL.Query().Get("code")}, p)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		transform.Page(e, res, transform.Coupon)
	})
}

func (h *Handler) showCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.Coupons.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { transform.Coupon(e, c) })
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeCoupon(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.Coupons.Create(r.Context(), req.coupon())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { transform.Coupon(e, c) })
}

func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	req, err := h.decodeCoupon(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.Coupons.Update(r.Context(), id, req.patch())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { transform.Coupon(e, c) })
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Coupons.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
