package models

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
func (p Pagination) Offset() uint64 {
	if p.Page < 1 {
		p.Page = 1
	}
	return uint64(p.Page-1) * p.Limit()
}

// Limit returns the page size as limit.
func (p Pagination) Limit() uint64 {
	if p.PageSize < 1 {
		return 25
	}
	if p.PageSize > 100 {
		return 100
	}
	return uint64(p.PageSize)
}

// TotalPages calculates the total number of pages.
func (p Pagination) TotalPages(total int) int {
	size := int(p.Limit())
	pages := total / size
	if total%size > 0 {
		pages++
	}
	if pages < 1 {
		return 1
	}
	return pages
}
