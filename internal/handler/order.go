package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/samber/lo"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/transform"
)

// showInclude is the expansion of a single order when ?include= is absent.
const showInclude = transform.IncludeItems | transform.IncludeDiscounts

type itemRequest struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int   `json:"quantity"`
}

type orderRequest struct {
	UserID *int64        `json:"user_id" validate:"omitempty,gt=0"`
	Status *string       `json:"status" validate:"omitempty,min=1,max=32"`
	Items  []itemRequest `json:"items" validate:"dive"`
}

func (h *Handler) decodeOrder(w http.ResponseWriter, r *http.Request) (*orderRequest, error) {
	var req orderRequest
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "user_id":
			req.UserID, err = nullable(d, readInt64)
		case "status":
			req.Status, err = nullable(d, readString)
		case "items":
			err = decodeItems(d, &req)
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

func decodeItems(d *jx.Decoder, req *orderRequest) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	req.Items = []itemRequest{}
	return d.Arr(func(d *jx.Decoder) error {
		var it itemRequest
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "product_id":
				it.ProductID, err = d.Int64()
			case "quantity":
				it.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		})
		req.Items = append(req.Items, it)
		return err
	})
}

func (req *orderRequest) items() []order.ItemInput {
	if req.Items == nil {
		return nil
	}
	return lo.Map(req.Items, func(it itemRequest, _ int) order.ItemInput {
		return order.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity}
	})
}

// relations loads the users and coupons that inc asks to embed for orders.
func (h *Handler) relations(ctx context.Context, inc transform.Include, orders ...*order.Order) (transform.Relations, error) {
	var rel transform.Relations

	if inc.Has(transform.IncludeUser) {
		ids := lo.Uniq(lo.Map(orders, func(o *order.Order, _ int) int64 { return o.UserID }))
		users, err := h.Users.GetByIDs(ctx, ids)
		if err != nil {
			return rel, errors.Wrap(err, "load users")
		}
		rel.Users = lo.KeyBy(users, func(u user.User) int64 { return u.ID })
	}

	if inc.Has(transform.IncludeDiscounts) || inc.Has(transform.IncludeCoupons) {
		ids := lo.Uniq(lo.FlatMap(orders, func(o *order.Order, _ int) []int64 { return o.CouponIDs() }))
		if len(ids) > 0 {
			coupons, err := h.CouponLookup.GetByIDs(ctx, ids)
			if err != nil {
				return rel, errors.Wrap(err, "load coupons")
			}
			rel.Coupons = lo.KeyBy(coupons, func(c coupon.Coupon) int64 { return c.ID })
		}
	}
	return rel, nil
}

func (h *Handler) writeOrder(w http.ResponseWriter, r *http.Request, status int, o *order.Order, inc transform.Include) {
	rel, err := h.relations(r.Context(), inc, o)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, status, func(e *jx.Encoder) { transform.Order(e, o, inc, rel) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	p, err := pageRequest(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	inc, err := include(r, 0)
	if err != nil {
		fail(w, r, err)
		return
	}
	q := r.URL.Query()
	f := order.Filter{Status: order.Status(q.Get("status")), ID: q.Get("id")}

	res, err := h.Orders.List(r.Context(), f, p)
	if err != nil {
		fail(w, r, err)
		return
	}
	orders := make([]*order.Order, len(res.Items))
	for i := range res.Items {
		orders[i] = &res.Items[i]
	}
	rel, err := h.relations(r.Context(), inc, orders...)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		transform.Page(e, res, func(e *jx.Encoder, o *order.Order) {
			transform.Order(e, o, inc, rel)
		})
	})
}

func (h *Handler) showOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	inc, err := include(r, showInclude)
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.Orders.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeOrder(w, r, http.StatusOK, o, inc)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeOrder(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if req.UserID == nil {
		fail(w, r, badRequest("user_id is required"))
		return
	}
	in := order.CreateInput{UserID: *req.UserID, Items: req.items()}
	if req.Status != nil {
		in.Status = order.Status(*req.Status)
	}
	o, err := h.Orders.Create(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeOrder(w, r, http.StatusCreated, o, showInclude)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	req, err := h.decodeOrder(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p := order.Patch{UserID: req.UserID, Items: req.items()}
	if req.Status != nil {
		s := order.Status(*req.Status)
		p.Status = &s
	}
	o, err := h.Orders.Update(r.Context(), id, p)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeOrder(w, r, http.StatusOK, o, showInclude)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Orders.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
