package helpers

import (
	"net/http"
	"strconv"

	"referrski/internal/domain"
)

// Pagination query parameter defaults and limits.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ParsePagination reads page and page_size from the query string. Missing values take the
// defaults and page_size above MaxPageSize is clamped; anything non-numeric or below 1 is a
// validation error naming the parameter.
func ParsePagination(r *http.Request) (domain.PaginationParams, error) {
	q := r.URL.Query()
	verr := &domain.ValidationError{}
	page := positiveInt(q.Get("page"), DefaultPage, "page", verr)
	pageSize := min(positiveInt(q.Get("page_size"), DefaultPageSize, "page_size", verr), MaxPageSize)
	if err := verr.OrNil(); err != nil {
		return domain.PaginationParams{}, err
	}
	return domain.PaginationParams{Page: page, PageSize: pageSize}, nil
}

func positiveInt(raw string, def int, field string, verr *domain.ValidationError) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		verr.Add(field, "must be a positive integer")
		return def
	}
	return v
}

// PaginationMeta is the pagination metadata included in paginated list responses.
// swagger:model PaginationMeta
type PaginationMeta struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

// NewPaginationMeta builds the list metadata for params and the unpaginated total.
func NewPaginationMeta(params domain.PaginationParams, total int) PaginationMeta {
	meta := PaginationMeta{Page: params.Page, PageSize: params.PageSize, Total: total}
	if params.PageSize > 0 {
		meta.TotalPages = (total + params.PageSize - 1) / params.PageSize
	}
	meta.HasMore = params.Offset()+params.PageSize < total
	return meta
}
