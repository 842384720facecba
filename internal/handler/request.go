package handler

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/transform"
)

const maxBodyBytes = 1 << 20

// requestError is a malformed or invalid request, answered with 400.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(v reflect.Value) any {
		d, ok := v.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		return d.InexactFloat64()
	}, decimal.Decimal{})
	return v
}

// check runs struct validation and flattens failures into one message such
// as "discount: gte 0; users[1]: gt 0".
func (h *Handler) check(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validate")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += " " + fe.Param()
		}
		msgs = append(msgs, fe.Field()+": "+rule)
	}
	return &requestError{msg: strings.Join(msgs, "; ")}
}

// decodeObject feeds every field of the JSON object body to field. Unknown
// fields must be skipped by field.
func decodeObject(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 4096)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	})
	if err == nil {
		return nil
	}
	var re *requestError
	if errors.As(err, &re) {
		return re
	}
	return badRequest("malformed request body: %v", err)
}

// nullable reads a value with read, mapping JSON null to nil.
func nullable[T any](d *jx.Decoder, read func(*jx.Decoder) (T, error)) (*T, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := read(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func readString(d *jx.Decoder) (string, error) { return d.Str() }
func readInt(d *jx.Decoder) (int, error)       { return d.Int() }
func readInt64(d *jx.Decoder) (int64, error)   { return d.Int64() }
func readBool(d *jx.Decoder) (bool, error)     { return d.Bool() }

// readDecimal accepts a JSON number or a numeric string.
func readDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var s string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		s = n.String()
	case jx.String:
		var err error
		if s, err = d.Str(); err != nil {
			return decimal.Zero, err
		}
	default:
		return decimal.Zero, badRequest("expected a decimal number")
	}
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, badRequest("invalid decimal %q", s)
	}
	return v, nil
}

// readTime accepts RFC 3339 timestamps and plain dates. A plain date is the
// start of that day in UTC.
func readTime(d *jx.Decoder) (time.Time, error) {
	t, _, err := parseTime(d)
	return t, err
}

// readUntil is readTime for the closing bound of a window: a plain date
// covers the whole day.
func readUntil(d *jx.Decoder) (time.Time, error) {
	t, dateOnly, err := parseTime(d)
	if err != nil || !dateOnly {
		return t, err
	}
	return t.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

func parseTime(d *jx.Decoder) (t time.Time, dateOnly bool, err error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, false, err
	}
	for _, layout := range []string{time.RFC3339, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), false, nil
		}
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, badRequest("invalid timestamp %q", s)
}

// readIDs reads an id array. Null yields nil and [] yields an empty non-nil
// slice, so callers can tell "keep" from "clear".
func readIDs(d *jx.Decoder) ([]int64, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	ids := []int64{}
	err := d.Arr(func(d *jx.Decoder) error {
		id, err := d.Int64()
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

// pathID parses the {id} route parameter.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id %q", raw)
	}
	return id, nil
}

// pageRequest reads page and perPage from the query string.
func pageRequest(r *http.Request) (paging.Request, error) {
	q := r.URL.Query()
	var p paging.Request
	for name, dst := range map[string]*int{"page": &p.Page, "perPage": &p.PerPage} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, badRequest("invalid %s %q", name, raw)
		}
		*dst = n
	}
	return p.Normalize(), nil
}

// include parses ?include=, falling back to def when the parameter is absent.
func include(r *http.Request, def transform.Include) (transform.Include, error) {
	if !r.URL.Query().Has("include") {
		return def, nil
	}
	inc, err := transform.ParseInclude(r.URL.Query().Get("include"))
	if err != nil {
		return 0, badRequest("%v", err)
	}
	return inc, nil
}
