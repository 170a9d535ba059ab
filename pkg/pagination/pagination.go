package pagination

import (
	"fmt"
	"strings"
)

const (
	// DefaultSize is the standard page size when one is not provided.
	DefaultSize = 20
	// MaxSize caps how many rows any page query can request.
	MaxSize = 100
)

// Params holds offset pagination inputs from controllers or services.
type Params struct {
	Page int
	Size int
	Desc bool
}

// Page wraps one page of results with totals for the response envelope.
type Page[T any] struct {
	Content       []T   `json:"content"`
	PageNumber    int   `json:"page_number"`
	PageSize      int   `json:"page_size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

// Normalize clamps page and size to supported bounds.
func (p Params) Normalize() Params {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultSize
	}
	if p.Size > MaxSize {
		p.Size = MaxSize
	}
	return p
}

// Offset returns the row offset for the normalized page.
func (p Params) Offset() int {
	return p.Page * p.Size
}

// ParseSortDirection accepts ASC/DESC (any case); empty defaults to DESC.
func ParseSortDirection(value string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", "DESC":
		return true, nil
	case "ASC":
		return false, nil
	default:
		return false, fmt.Errorf("invalid sort direction %q", value)
	}
}

// NewPage assembles a Page from the queried content and the total row count.
func NewPage[T any](content []T, params Params, total int64) Page[T] {
	params = params.Normalize()
	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(params.Size) - 1) / int64(params.Size))
	}
	if content == nil {
		content = []T{}
	}
	return Page[T]{
		Content:       content,
		PageNumber:    params.Page,
		PageSize:      params.Size,
		TotalElements: total,
		TotalPages:    totalPages,
		First:         params.Page == 0,
		Last:          params.Page >= totalPages-1,
	}
}
