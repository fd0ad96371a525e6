package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/condorshop/storefront/internal/domain"
	"github.com/condorshop/storefront/internal/service"
	"github.com/condorshop/storefront/pkg/httputil"
	"github.com/condorshop/storefront/pkg/validator"
)

// CartHandler serves the cart endpoints. Mutations respond with the
// optimistic snapshot immediately; reconciliation and rollback happen
// asynchronously and surface as notices on subsequent responses.
type CartHandler struct {
	sessions *service.Manager
	logger   *slog.Logger
}

// NewCartHandler creates a cart HTTP handler.
func NewCartHandler(sessions *service.Manager, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON body for adding a product to the cart.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// UpdateQuantityRequest is the JSON body for a quantity edit.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

// cartView is the cart payload returned to the UI.
type cartView struct {
	Items     []domain.LineItem `json:"items"`
	Totals    domain.Totals     `json:"totals"`
	ItemCount int               `json:"item_count"`
	Identity  string            `json:"identity"`
}

func (h *CartHandler) view(s *service.ShopperSession) cartView {
	snapshot := s.Controller.Snapshot()
	return cartView{
		Items:     snapshot.Items,
		Totals:    snapshot.Totals,
		ItemCount: snapshot.ItemCount(),
		Identity:  string(s.Resolver.Mode()),
	}
}

func (h *CartHandler) writeCart(w http.ResponseWriter, s *service.ShopperSession, status int) {
	httputil.WriteJSON(w, status, httputil.Response{
		Data:    h.view(s),
		Notices: s.Notices.Drain(),
	})
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart. With ?refresh=1 the server-of-record is
// consulted first; otherwise the locally known snapshot is returned as-is.
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Session(r.Context(), sessionIDFromContext(r.Context()))

	if r.URL.Query().Get("refresh") == "1" {
		if err := s.Controller.Refresh(r.Context(), true); err != nil {
			// The local snapshot stays serviceable; surface the failure as a
			// notice rather than failing the read.
			s.Notices.Notify("We couldn't refresh your cart. Showing the last known state.")
			h.logger.WarnContext(r.Context(), "cart refresh failed",
				slog.String("error", err.Error()),
			)
		}
	}

	h.writeCart(w, s, http.StatusOK)
}

// AddItem handles POST /api/v1/cart/items. The backend confirms without item
// data, so a successful add is followed by a full refetch before responding.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Session(r.Context(), sessionIDFromContext(r.Context()))

	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := s.Controller.Add(r.Context(), req.ProductID, req.Quantity); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeCart(w, s, http.StatusOK)
}

// UpdateQuantity handles PUT /api/v1/cart/items/{lineItemID}. The response
// carries the optimistic state; the debounced remote write follows.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Session(r.Context(), sessionIDFromContext(r.Context()))

	lineItemID := chi.URLParam(r, "lineItemID")
	if lineItemID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "lineItemID is required"},
		})
		return
	}

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := s.Controller.QuantityChange(r.Context(), lineItemID, req.Quantity); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeCart(w, s, http.StatusOK)
}

// RemoveItem handles DELETE /api/v1/cart/items/{lineItemID}.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Session(r.Context(), sessionIDFromContext(r.Context()))

	lineItemID := chi.URLParam(r, "lineItemID")
	if lineItemID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "lineItemID is required"},
		})
		return
	}

	if err := s.Controller.Remove(r.Context(), lineItemID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeCart(w, s, http.StatusOK)
}

// ClearCart handles DELETE /api/v1/cart.
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Session(r.Context(), sessionIDFromContext(r.Context()))

	s.Controller.Clear(r.Context())
	h.writeCart(w, s, http.StatusOK)
}
