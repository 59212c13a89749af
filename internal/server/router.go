package server

import (
	"net/http"

	"github.com/go-chi/httprate"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/receivables/internal/auth"
	"github.com/diewo77/receivables/internal/config"
	"github.com/diewo77/receivables/internal/handlers"
	"github.com/diewo77/receivables/internal/httpx"
	"github.com/diewo77/receivables/internal/models"
	"github.com/diewo77/receivables/internal/processor"
	"github.com/diewo77/receivables/internal/services"
)

// New constructs the root http.Handler with all routes and middlewares
// applied.
func New(db *gorm.DB, cfg config.Config, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	invoiceSvc := services.NewInvoiceService(db, logger, cfg.BaseURL)
	paymentSvc := services.NewPaymentService(db, logger, processor.NewClient(cfg.ProcessorAPIKey), cfg.ProcessorCurrency)

	authHandler := handlers.NewAuthHandler(db, logger)
	invoiceHandler := handlers.NewInvoiceHandler(invoiceSvc, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentSvc, logger)
	webhookHandler := handlers.NewWebhookHandler(db, paymentSvc, cfg.ProcessorWebhookSecret, logger)
	customerHandler := handlers.NewCustomerHandler(db, logger)
	demoHandler := handlers.NewDemoHandler(db, logger)

	sessions := auth.Middleware(db)
	authed := func(h http.HandlerFunc) http.Handler {
		return sessions(auth.RequireAuth(h))
	}
	financeOnly := func(h http.HandlerFunc) http.Handler {
		return sessions(auth.RequireRole(models.RoleFinanceManager, h))
	}

	// --- Health endpoints ---
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := db.Exec("SELECT 1").Error; err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Auth
	mux.HandleFunc("POST /auth/signup", authHandler.Signup)
	mux.HandleFunc("POST /auth/login", authHandler.Login)
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)

	// Customers (backs the invoice creation form)
	mux.Handle("GET /customers", financeOnly(customerHandler.List))

	// Invoices
	mux.Handle("POST /invoices", financeOnly(invoiceHandler.Create))
	mux.Handle("GET /invoices", authed(invoiceHandler.List))
	mux.Handle("GET /invoices/{id}", authed(invoiceHandler.Get))
	mux.Handle("POST /invoices/{id}/payment-link", financeOnly(invoiceHandler.PaymentLink))

	// Payments
	mux.Handle("POST /payments", authed(paymentHandler.Record))
	mux.HandleFunc("POST /create-payment-intent", paymentHandler.CreateIntent)

	// Processor webhook: raw body + signature, no session
	mux.HandleFunc("POST /webhooks/processor", webhookHandler.Handle)

	// Demo scheduling
	mux.HandleFunc("POST /demo/schedule", demoHandler.Create)
	mux.HandleFunc("GET /demo/schedule", demoHandler.List)
	mux.Handle("PATCH /demo/schedule/{id}", financeOnly(demoHandler.UpdateStatus))
	mux.Handle("DELETE /demo/schedule/{id}", financeOnly(demoHandler.Delete))

	limiter := httprate.Limit(cfg.RateLimitRequests, cfg.RateLimitWindow,
		httprate.WithKeyFuncs(clientKey))

	var handler http.Handler = mux
	handler = withOriginCheck(handler)
	handler = limiter(handler)
	handler = withSecurityHeaders(handler)
	handler = withLogging(logger, handler)
	handler = withRecover(logger, handler)
	return handler
}
