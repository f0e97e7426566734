/*
server.go - Router setup for the inventory ledger API

PURPOSE:
  Wires the chi router: middleware, CORS, and the route table binding
  URLs to the handlers in handlers.go.

SEE ALSO:
  - handlers.go: the handler implementations
  - cmd/server/main.go: process entrypoint using this router
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/warp/inventory-ledger/inventory"
	"github.com/warp/inventory-ledger/store/sqlite"
)

// NewRouter builds the HTTP routing table for the API.
func NewRouter(store *sqlite.Store, ledger *inventory.Ledger, log logrus.FieldLogger) http.Handler {
	h := NewHandler(store, ledger, log)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/product-groups", func(r chi.Router) {
			r.Post("/", h.CreateGroup)
			r.Get("/", h.ListGroups)
			r.Get("/{id}", h.GetGroup)
			r.Put("/{id}", h.UpdateGroup)
		})

		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.CreateProduct)
			r.Get("/", h.ListProducts)
			r.Get("/{id}", h.GetProduct)
			r.Put("/{id}", h.UpdateProduct)
		})

		r.Route("/lots", func(r chi.Router) {
			r.Post("/", h.CreateLot)
			r.Get("/", h.ListLots)
			r.Get("/{id}", h.GetLot)
			r.Put("/{id}", h.UpdateLot)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/in", h.PostInbound)
			r.Post("/out", h.PostOutbound)
			r.Get("/transactions", h.ListTransactions)
			r.Put("/transactions/{id}", h.CorrectTransaction)
			r.Get("/balance", h.ListBalances)
		})

		r.Get("/audit-logs", h.ListAuditLogs)
		r.Get("/dashboard/summary", h.DashboardSummary)
	})

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
