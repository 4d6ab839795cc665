package router

import (
	"net/http"
	"time"

	"settlement-service/internal/handler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func SetupRoutes(
	paymentHandler *handler.PaymentHandler,
	webhookHandler *handler.WebhookHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Signature"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/api/v1/settlements/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			r.Post("/initiate", paymentHandler.HandleInitiateRidePayment)
			r.Post("/verify/{charge_id}", paymentHandler.HandleVerifyPayment)
		})

		r.Post("/withdrawals", paymentHandler.HandleWithdraw)

		r.Get("/wallets/{user_id}", paymentHandler.HandleGetWallet)

		r.Get("/transactions/{ref}", paymentHandler.HandleGetTransaction)

		r.Get("/operators", paymentHandler.HandleListOperators)
		r.Get("/banks", paymentHandler.HandleListBanks)
		r.Get("/balance", paymentHandler.HandlePlatformBalance)

		// Gateway-initiated notifications.
		r.Post("/webhooks/paychangu", webhookHandler.HandleGatewayWebhook)
	})

	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()))
		})
	}
}
