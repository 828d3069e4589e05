package models

import "time"

// DateLayout is the storage and display layout for route dates.
const DateLayout = time.DateOnly

// Pagination holds pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

// DefaultPagination returns default pagination settings.
func DefaultPagination() Pagination {
	return Pagination{
		Page:     1,
		PageSize: 25,
	}
}

// Offset calculates the SQL offset for the current page.
func (p Pagination) Offset() int {
	page := p.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * p.Limit()
}

// Limit returns the page size clamped to [1, 100].
func (p Pagination) Limit() int {
	switch {
	case p.PageSize < 1:
		return 25
	case p.PageSize > 100:
		return 100
	default:
		return p.PageSize
	}
}

// TotalPages calculates the total number of pages for a row count.
func (p Pagination) TotalPages(total int) int {
	limit := p.Limit()
	pages := (total + limit - 1) / limit
	if pages < 1 {
		return 1
	}
	return pages
}

// GroupKey identifies the indents that are reconciled together against one
// slice of realized demand.
type GroupKey struct {
	Route string
	Date  string
}

// NewGroupKey builds a key from a route and a calendar date.
func NewGroupKey(route string, date time.Time) GroupKey {
	return GroupKey{Route: route, Date: date.Format(DateLayout)}
}

func (k GroupKey) String() string {
	return k.Route + "@" + k.Date
}
