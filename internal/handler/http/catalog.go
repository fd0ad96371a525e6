package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/condorshop/storefront/internal/service"
	"github.com/condorshop/storefront/pkg/httputil"
	"github.com/condorshop/storefront/pkg/pagination"
)

// CatalogHandler proxies product browsing to the backend catalog.
type CatalogHandler struct {
	sessions *service.Manager
	logger   *slog.Logger
}

// NewCatalogHandler creates a catalog HTTP handler.
func NewCatalogHandler(sessions *service.Manager, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// ListProducts handles GET /api/v1/products.
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Session(r.Context(), sessionIDFromContext(r.Context()))

	p := pagination.FromRequest(r)

	products, err := s.Gateway.ListProducts(r.Context(), p.Page, p.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]any{"products": products, "page": p.Page, "per_page": p.PerPage},
	})
}

// GetProduct handles GET /api/v1/products/{slug}.
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Session(r.Context(), sessionIDFromContext(r.Context()))

	slug := chi.URLParam(r, "slug")
	if slug == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "slug is required"},
		})
		return
	}

	product, err := s.Gateway.GetProduct(r.Context(), slug)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}
