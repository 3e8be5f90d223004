// Package pagination parses limit/offset query parameters and shapes list
// responses.
package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset=, clamping limit to [1, MaxLimit]
// and offset to >= 0. Unparseable values fall back to the defaults.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
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

// Response wraps a paginated API response.
type Response struct {
	Data     interface{} `json:"data"`
	Total    int         `json:"total"`
	Limit    int         `json:"limit"`
	Offset   int         `json:"offset"`
	HasMore  bool        `json:"has_more"`
	Next     string      `json:"next,omitempty"`
	Previous string      `json:"previous,omitempty"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

// WithLinks fills Next and Previous with URLs under basePath.
func (r *Response) WithLinks(basePath string) *Response {
	p := Params{Limit: r.Limit, Offset: r.Offset}
	if p.HasNext(r.Total) {
		r.Next = p.url(basePath, p.NextOffset())
	}
	if p.HasPrevious() {
		r.Previous = p.url(basePath, p.PreviousOffset())
	}
	return r
}

func (p Params) url(basePath string, offset int) string {
	return fmt.Sprintf("%s?limit=%d&offset=%d", basePath, p.Limit, offset)
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset)
}

func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset never goes below zero.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}
