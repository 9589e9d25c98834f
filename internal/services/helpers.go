package services

import "strings"

// normaliseEmail lowercases and trims an email address for storage and lookup.
func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Pagination carries list pagination inputs with sane bounds applied.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// Normalise clamps the page and page size to their allowed ranges. Handlers
// use it to report the effective per-page value in pagination meta.
func (p Pagination) Normalise() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

func (p Pagination) offset() int {
	return (p.Page - 1) * p.PageSize
}
