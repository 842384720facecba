// Package transform shapes domain entities into JSON response bodies.
package transform

import (
	"strings"

	"github.com/go-faster/errors"
)

// Include is the set of order relations to expand in a response.
type Include uint8

const (
	IncludeUser Include = 1 << iota
	IncludeItems
	IncludeDiscounts
	IncludeCoupons
)

var includeNames = map[string]Include{
	"user":      IncludeUser,
	"items":     IncludeItems,
	"discounts": IncludeDiscounts,
	"coupons":   IncludeCoupons,
}

// ErrUnknownInclude is returned for relation names ParseInclude does not
// know.
var ErrUnknownInclude = errors.New("unknown include")

// ParseInclude parses a comma separated list such as "items,discounts".
// Blank entries are ignored.
func ParseInclude(s string) (Include, error) {
	var inc Include
	for _, name := range strings.Split(s, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		v, ok := includeNames[name]
		if !ok {
			return 0, errors.Wrapf(ErrUnknownInclude, "%q", name)
		}
		inc |= v
	}
	return inc, nil
}

// Has reports whether every relation in f is included.
func (i Include) Has(f Include) bool {
	return i&f == f
}
