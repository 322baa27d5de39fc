package payments_http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/djamrezki/instant-payment-service/internal/app/transfers"
)

func RegisterRoutes(r chi.Router, s transfers.TransferService, l *zap.Logger) {
	handler := NewPaymentHandler(s, l.With(zap.String("component", "PaymentHTTPHandler")))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", handler.SendPaymentHandler)
			r.Get("/{id}", handler.GetPaymentHandler)
			r.Get("/{id}/entries", handler.GetPaymentEntriesHandler)
		})
		r.Get("/accounts/{iban}", handler.GetAccountHandler)
	})
}

const requestTimeout = 30 * time.Second

// NewRouter builds the service router with request ids, access logs, panic
// recovery and CORS for the given origins.
func NewRouter(s transfers.TransferService, allowedOrigins []string, l *zap.Logger) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(requestTimeout))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", idempotencyKeyHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	RegisterRoutes(router, s, l)
	return router
}
