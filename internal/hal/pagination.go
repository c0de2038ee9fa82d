package hal

import (
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/civicalert/civicalert/pkg/errors"
)

// Pagination is the state of one page request. TotalPages is derived, never stored.
type Pagination struct {
	Page     int
	PageSize int
	Total    int64
	Filters  url.Values
}

// TotalPages is ceil(total/page_size), never less than one.
func (p Pagination) TotalPages() int {
	if p.PageSize <= 0 || p.Total <= 0 {
		return 1
	}
	pages := int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
	if pages < 1 {
		return 1
	}
	return pages
}

// Offset is the number of items preceding the current page.
func (p Pagination) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// WithTotal returns a copy with the total item count set.
func (p Pagination) WithTotal(total int64) Pagination {
	p.Total = total
	return p
}

// ParsePagination reads page and page_size from query and keeps only allow-listed filter
// keys, with their values untouched. page_size is capped at the configured maximum.
// Pages beyond the last one are accepted.
func ParsePagination(query url.Values, allowedFilters []string, cfg Config) (Pagination, error) {
	cfg = cfg.normalised()
	p := Pagination{Page: 1, PageSize: cfg.DefaultPageSize, Filters: url.Values{}}

	var fields []apperrors.FieldError
	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			fields = append(fields, apperrors.FieldError{
				Field:         "page",
				Message:       "page must be a positive integer",
				Kind:          "min",
				RejectedInput: raw,
			})
		} else {
			p.Page = page
		}
	}
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			fields = append(fields, apperrors.FieldError{
				Field:         "page_size",
				Message:       "page size must be a positive integer",
				Kind:          "min",
				RejectedInput: raw,
			})
		} else {
			p.PageSize = min(size, cfg.MaxPageSize)
		}
	}
	if len(fields) > 0 {
		return Pagination{}, apperrors.NewValidation(fields...)
	}

	for _, key := range allowedFilters {
		if values, ok := query[key]; ok && len(values) > 0 {
			p.Filters[key] = append([]string(nil), values...)
		}
	}
	return p, nil
}
