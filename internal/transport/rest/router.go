package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/sokofresh/mpesa-checkout/internal/payment"
	"github.com/sokofresh/mpesa-checkout/internal/transport/middleware"
	"github.com/sokofresh/mpesa-checkout/internal/transport/swagger"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, tokenIssuer *middleware.TokenIssuer, allowedOrigins string, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Health check routes
	router.Get("/health", healthHandler.healthCheckHandler)
	router.Get("/ping", healthHandler.pingHandler)

	router.Route("/api/payments", func(r chi.Router) {
		// Daraja posts results here; it cannot carry our bearer token.
		if webhookHandler != nil {
			r.Post("/callback", webhookHandler.HandleCallback)
			r.Post("/timeout", webhookHandler.HandleTimeout)
		}

		if paymentHandler != nil {
			r.Group(func(pr chi.Router) {
				pr.Use(middleware.BearerAuth(tokenIssuer, logger))

				pr.Post("/initiate", paymentHandler.Initiate)
				pr.Get("/status/{payment_id}", paymentHandler.GetStatus)
				pr.Get("/history", paymentHandler.History)
			})
		}
	})
}
