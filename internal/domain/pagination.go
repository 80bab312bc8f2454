package domain

// PaginationParams holds offset-based pagination parameters for list queries.
type PaginationParams struct {
	Page     int
	PageSize int
}

// Offset returns the 0-based row offset for the current page.
func (p PaginationParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Limit returns PageSize, or -1 (no limit) when unset.
func (p PaginationParams) Limit() int {
	if p.PageSize < 1 {
		return -1
	}
	return p.PageSize
}
