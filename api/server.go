/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for operational dashboards

SECURITY NOTE:
  No authentication middleware. The service sits behind the platform
  gateway, which owns authn/authz.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
		})

		// Loan routes
		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.CreateLoan)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetLoan)
				r.Get("/transactions", h.GetTransactions)
				r.Get("/schedule", h.GetSchedule)
				r.Get("/delinquency", h.GetDelinquency)

				r.Post("/approve", h.ApproveLoan)
				r.Post("/reject", h.RejectLoan)
				r.Post("/disbursements", h.Disburse)
				r.Post("/repayments", h.Repay)
				r.Post("/charges", h.AddCharge)
				r.Post("/charges/{chargeId}/waive", h.WaiveCharge)
				r.Post("/waive-interest", h.WaiveInterest)
				r.Post("/chargebacks", h.Chargeback)
				r.Post("/refunds", h.CreditBalanceRefund)
				r.Post("/write-off", h.WriteOff)
				r.Post("/charge-off", h.ChargeOff)
				r.Post("/transactions/{txId}/reverse", h.ReverseTransaction)
				r.Post("/delinquency/pause", h.PauseDelinquency)
				r.Post("/delinquency/resume", h.ResumeDelinquency)
				r.Post("/fraud", h.MarkFraud)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/business-date", h.GetBusinessDate)
			r.Post("/business-date", h.SetBusinessDate)
			r.Post("/cob", h.RunCOB)
			r.Post("/cob/rerun", h.RerunCOB)
			r.Get("/journal", h.GetJournal)
		})
	})

	return r
}
