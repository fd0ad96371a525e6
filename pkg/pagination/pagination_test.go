package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 24, p.PerPage)
}

func TestFromRequest_Defaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	p := FromRequest(req)

	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 24, p.PerPage)
}

func TestFromRequest_CustomValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/products?page=3&per_page=48", nil)
	p := FromRequest(req)

	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 48, p.PerPage)
}

func TestFromRequest_InvalidPage(t *testing.T) {
	tests := []struct {
		name string
		page string
	}{
		{"negative", "-1"},
		{"zero", "0"},
		{"not a number", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/products?page="+tt.page, nil)
			p := FromRequest(req)
			assert.Equal(t, 1, p.Page)
		})
	}
}

func TestFromRequest_PerPage_MaxCap(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/products?per_page=200", nil)
	p := FromRequest(req)
	assert.Equal(t, 24, p.PerPage)
}

func TestFromRequest_PerPage_Exactly100(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/products?per_page=100", nil)
	p := FromRequest(req)
	assert.Equal(t, 100, p.PerPage)
}

func TestFromRequest_PerPage_Zero(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/products?per_page=0", nil)
	p := FromRequest(req)
	assert.Equal(t, 24, p.PerPage)
}
