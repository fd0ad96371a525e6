package http

import (
	"log/slog"
	"net/http"

	"github.com/condorshop/storefront/internal/service"
	apperrors "github.com/condorshop/storefront/pkg/errors"
	"github.com/condorshop/storefront/pkg/httputil"
	"github.com/condorshop/storefront/pkg/validator"
)

// SessionHandler serves login/logout and the order endpoints.
type SessionHandler struct {
	sessions *service.Manager
	logger   *slog.Logger
}

// NewSessionHandler creates a session/order HTTP handler.
func NewSessionHandler(sessions *service.Manager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// LoginRequest is the JSON body for authenticating the shopper session.
type LoginRequest struct {
	Token string `json:"token" validate:"required"`
}

// Login handles POST /api/v1/session/login. The token is a backend-issued
// JWT; the transition to authenticated mode forces a cart refetch so the
// backend can merge or replace the guest cart.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Session(r.Context(), sessionIDFromContext(r.Context()))

	var req LoginRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := s.Login(req.Token); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"identity": string(s.Resolver.Mode())},
	})
}

// Logout handles POST /api/v1/session/logout.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Session(r.Context(), sessionIDFromContext(r.Context()))

	s.Logout(r.Context())

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"identity": string(s.Resolver.Mode())},
	})
}

// Checkout handles POST /api/v1/checkout. On success the local cart is reset
// and the placed order is returned.
func (h *SessionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Session(r.Context(), sessionIDFromContext(r.Context()))

	order, err := s.Checkout(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{
		Data:    order,
		Notices: s.Notices.Drain(),
	})
}

// ListOrders handles GET /api/v1/orders. Order history requires an
// authenticated shopper.
func (h *SessionHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Session(r.Context(), sessionIDFromContext(r.Context()))

	if !s.Resolver.Authenticated() {
		httputil.WriteError(w, r, apperrors.Unauthorized("sign in to view order history"), h.logger)
		return
	}

	orders, err := s.Gateway.ListOrders(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]any{"orders": orders},
	})
}
