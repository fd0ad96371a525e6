// Package pagination extracts page windows from storefront query strings.
package pagination

import (
	"net/http"
	"strconv"
)

const (
	defaultPerPage = 24
	maxPerPage     = 100
)

// Params holds the page window requested by a listing call. The backend
// paginates by page number, so no offset is derived here.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// DefaultParams returns the first page sized for the storefront product grid.
func DefaultParams() Params {
	return Params{
		Page:    1,
		PerPage: defaultPerPage,
	}
}

// FromRequest extracts pagination parameters from an HTTP request. Invalid or
// out-of-range values fall back to the defaults rather than erroring.
func FromRequest(r *http.Request) Params {
	p := DefaultParams()

	if page := r.URL.Query().Get("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 0 {
			p.Page = v
		}
	}

	if perPage := r.URL.Query().Get("per_page"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= maxPerPage {
			p.PerPage = v
		}
	}

	return p
}
