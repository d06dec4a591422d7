package router

import (
	"net/http"

	"storefront/internal/handler"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// New creates a new HTTP router with all routes and middleware configured.
func New(orderHandler *handler.OrderHandler, apiKey string, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Apply middleware in order: Recovery -> Logging -> CORS -> APIKeyAuth
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS)
	r.Use(middleware.APIKeyAuth(apiKey, logger))

	// Health check endpoint (no authentication required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status": "healthy"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.Create)
			r.Get("/", orderHandler.List)
			r.Post("/combo", orderHandler.CreateCombo)
			r.Post("/shipping-fee", orderHandler.ShippingFee)
			r.Get("/{id}", orderHandler.GetByID)
			r.Post("/{id}/cancel", orderHandler.Cancel)
			r.Patch("/{id}/status", orderHandler.UpdateStatus)
			r.Post("/{id}/vouchers", orderHandler.ApplyVoucher)
		})

		r.Patch("/payments/{id}", orderHandler.UpdatePayment)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/orders", orderHandler.AdminList)
			r.Patch("/orders/{id}/status", orderHandler.AdminUpdateStatus)
		})
	})

	return r
}
