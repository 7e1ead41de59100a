package core

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// ListParams selects one page of a list. Filters hold caller-supplied query
// values keyed by parameter name; only names a resource declares are applied.
// Where holds typed conditions set by services (never by callers).
type ListParams struct {
	Page    int
	PerPage int
	Search  string
	Filters map[string]string
	Where   []Cond
}

// Cond is an equality condition on a column.
type Cond struct {
	Column string
	Value  any
}

// Normalize clamps paging values to their allowed ranges.
func (p ListParams) Normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

func (p ListParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// With returns a copy of p with an extra typed condition.
func (p ListParams) With(column string, value any) ListParams {
	where := make([]Cond, 0, len(p.Where)+1)
	where = append(where, p.Where...)
	p.Where = append(where, Cond{Column: column, Value: value})
	return p
}

// Page is the list envelope returned by every list endpoint.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

func NewPage[T any](items []T, total int64, p ListParams) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if total > 0 && p.PerPage > 0 {
		pages = int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	}
	return Page[T]{Items: items, Total: total, Page: p.Page, PerPage: p.PerPage, TotalPages: pages}
}

// MapPage converts the items of a page, keeping the paging fields.
func MapPage[T, U any](p Page[T], f func(T) U) Page[U] {
	out := make([]U, len(p.Items))
	for i, it := range p.Items {
		out[i] = f(it)
	}
	return Page[U]{Items: out, Total: p.Total, Page: p.Page, PerPage: p.PerPage, TotalPages: p.TotalPages}
}
