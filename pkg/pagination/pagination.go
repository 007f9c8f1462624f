// Package pagination pages lists the clinic API returns whole.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// MaxLimit caps a requested page size.
const MaxLimit = 200

// Params holds pagination parameters extracted from a request. A zero
// Limit means the whole list.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset=. Missing or invalid values fall
// back to the whole list from the start.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 0 {
		limit = 0
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

// Response wraps one page of a list.
type Response[T any] struct {
	Data    []T  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// Slice returns the page of items selected by p. Data is never nil.
func Slice[T any](items []T, p Params) Response[T] {
	total := len(items)
	start := p.Offset
	if start > total {
		start = total
	}
	end := total
	if p.Limit > 0 && start+p.Limit < total {
		end = start + p.Limit
	}
	data := make([]T, end-start)
	copy(data, items[start:end])
	return Response[T]{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  start,
		HasMore: end < total,
	}
}
