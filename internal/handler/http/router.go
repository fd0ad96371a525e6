package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/condorshop/storefront/internal/service"
	"github.com/condorshop/storefront/pkg/health"
	"github.com/condorshop/storefront/pkg/middleware"
)

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	sessions *service.Manager,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("storefront"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	cartHandler := NewCartHandler(sessions, logger)
	catalogHandler := NewCatalogHandler(sessions, logger)
	sessionHandler := NewSessionHandler(sessions, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(SessionID)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)

			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{lineItemID}", cartHandler.UpdateQuantity)
			r.Delete("/items/{lineItemID}", cartHandler.RemoveItem)
		})

		r.Get("/products", catalogHandler.ListProducts)
		r.Get("/products/{slug}", catalogHandler.GetProduct)

		r.Post("/checkout", sessionHandler.Checkout)
		r.Get("/orders", sessionHandler.ListOrders)

		r.Post("/session/login", sessionHandler.Login)
		r.Post("/session/logout", sessionHandler.Logout)
	})

	return r
}
