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
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/loans/*          Loan lifecycle (origination, payments, refinance)
  /api/installments/*   Per-installment operations (discounts)
  /api/discounts/*      Discount definitions
  /api/admin/*          Operational triggers
  /metrics              Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
// corsOrigins is a comma-separated allow-list.
func NewRouter(h *Handler, corsOrigins string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(corsOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Loan routes
		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.CreateLoan)
			r.Get("/{id}", h.GetLoan)
			r.Get("/{id}/installments", h.GetInstallments)
			r.Get("/{id}/allocations", h.GetAllocations)
			r.Get("/{id}/moratory", h.GetMoratory)
			r.Post("/{id}/payments", h.SubmitPayment)
			r.Post("/{id}/refinance", h.Refinance)
		})

		// Installment routes
		r.Route("/installments", func(r chi.Router) {
			r.Post("/{id}/discounts", h.ApplyDiscount)
		})

		// Discount routes
		r.Route("/discounts", func(r chi.Router) {
			r.Post("/", h.CreateDiscount)
			r.Get("/{id}", h.GetDiscount)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/overdue", h.TriggerOverdue)
		})
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", h.Metrics.Handler())

	return r
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
