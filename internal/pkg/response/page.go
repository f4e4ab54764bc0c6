package response

// Pagination describes the page returned by a list endpoint.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// PageResponse is the standard wrapper for list endpoints.
type PageResponse[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// DataResponse wraps a single resource.
type DataResponse[T any] struct {
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

// NewPageResponse is a helper to quickly create a response
func NewPageResponse[T any](items []T, page, limit, total int) PageResponse[T] {
	// Handle empty slice to avoid JSON outputting null
	if items == nil {
		items = make([]T, 0)
	}

	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return PageResponse[T]{
		Data: items,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}
}
