// Package paging holds the page request and result types shared by list
// operations.
package paging

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Request selects one page of a listing. Page is 1-based.
type Request struct {
	Page    int
	PerPage int
}

// Normalize clamps the request to valid bounds.
func (r Request) Normalize() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PerPage < 1 {
		r.PerPage = DefaultPerPage
	}
	if r.PerPage > MaxPerPage {
		r.PerPage = MaxPerPage
	}
	return r
}

// Offset is the number of rows to skip.
func (r Request) Offset() int {
	return (r.Page - 1) * r.PerPage
}

// Result is a page of items plus the size of the full listing.
type Result[T any] struct {
	Items   []T
	Total   int
	Page    int
	PerPage int
}

// LastPage returns the number of the final page, at least 1.
func (r Result[T]) LastPage() int {
	if r.PerPage <= 0 || r.Total == 0 {
		return 1
	}
	return (r.Total + r.PerPage - 1) / r.PerPage
}
