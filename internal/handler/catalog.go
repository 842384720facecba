package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/transform"
)

type productRequest struct {
	Name        *string          `json:"name" validate:"omitempty,max=255"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	CategoryID  *int64           `json:"category_id" validate:"omitempty,gt=0"`
	// clearCategory is set by an explicit null category_id.
	clearCategory bool
}

func (req *productRequest) apply(p *product.Product) {
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	switch {
	case req.CategoryID != nil:
		p.CategoryID = req.CategoryID
	case req.clearCategory:
		p.CategoryID = nil
	}
}

func (h *Handler) decodeProduct(w http.ResponseWriter, r *http.Request) (*productRequest, error) {
	var req productRequest
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			req.Name, err = nullable(d, readString)
		case "description":
			req.Description, err = nullable(d, readString)
		case "price":
			req.Price, err = nullable(d, readDecimal)
		case "category_id":
			req.clearCategory = d.Next() == jx.Null
			req.CategoryID, err = nullable(d, readInt64)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &req, h.check(&req)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	p, err := pageRequest(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.Products.List(r.Context(), product.Filter{Name: r.URL.Query().Get("name")}, p)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { transform.Page(e, res, transform.Product) })
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.Products.GetByID(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { transform.Product(e, p) })
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeProduct(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var p product.Product
	req.apply(&p)
	if err := p.Validate(); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Products.Create(r.Context(), &p); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { transform.Product(e, &p) })
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	req, err := h.decodeProduct(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.Products.GetByID(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	req.apply(p)
	if err := p.Validate(); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Products.Update(r.Context(), p); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { transform.Product(e, p) })
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Products.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categoryRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=255"`
	Description *string `json:"description"`
}

func (req *categoryRequest) apply(c *category.Category) {
	if req.Title != nil {
		c.Title = *req.Title
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
}

func (h *Handler) decodeCategory(w http.ResponseWriter, r *http.Request) (*categoryRequest, error) {
	var req categoryRequest
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "title":
			req.Title, err = nullable(d, readString)
		case "description":
			req.Description, err = nullable(d, readString)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &req, h.check(&req)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	p, err := pageRequest(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.Categories.List(r.Context(), category.Filter{Title: r.URL.Query().Get("title")}, p)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { transform.Page(e, res, transform.Category) })
}

func (h *Handler) showCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.Categories.GetByID(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { transform.Category(e, c) })
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeCategory(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var c category.Category
	req.apply(&c)
	if err := c.Validate(); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Categories.Create(r.Context(), &c); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { transform.Category(e, &c) })
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	req, err := h.decodeCategory(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.Categories.GetByID(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	req.apply(c)
	if err := c.Validate(); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Categories.Update(r.Context(), c); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { transform.Category(e, c) })
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Categories.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type userRequest struct {
	Name    *string `json:"name" validate:"omitempty,max=255"`
	Surname *string `json:"surname" validate:"omitempty,max=255"`
	Email   *string `json:"email" validate:"omitempty,email"`
}

func (req *userRequest) apply(u *user.User) {
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Surname != nil {
		u.Surname = *req.Surname
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
}

func (h *Handler) decodeUser(w http.ResponseWriter, r *http.Request) (*userRequest, error) {
	var req userRequest
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			req.Name, err = nullable(d, readString)
		case "surname":
			req.Surname, err = nullable(d, readString)
		case "email":
			req.Email, err = nullable(d, readString)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &req, h.check(&req)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	p, err := pageRequest(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.Users.List(r.Context(), user.Filter{Query: r.URL.Query().Get("q")}, p)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { transform.Page(e, res, transform.User) })
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.Users.GetByID(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { transform.User(e, u) })
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeUser(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var u user.User
	req.apply(&u)
	if err := u.Validate(); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Users.Create(r.Context(), &u); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { transform.User(e, &u) })
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	req, err := h.decodeUser(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.Users.GetByID(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	req.apply(u)
	if err := u.Validate(); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Users.Update(r.Context(), u); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { transform.User(e, u) })
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Users.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
