package utils

// PaginationParams carries page/limit query values for list endpoints.
type PaginationParams struct {
	Page  int
	Limit int
}

// NormalizePagination clamps page/limit to sane bounds.
func NormalizePagination(page, limit int) PaginationParams {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return PaginationParams{Page: page, Limit: limit}
}

// CalculateOffset returns the row offset for the current page.
func (p PaginationParams) CalculateOffset() int {
	return (p.Page - 1) * p.Limit
}
