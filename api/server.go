/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. Auth:       X-API-Key resolution (everything under /api except
                 registration)

ROUTE GROUPS:
  /api/users                 Registration (unauthenticated)
  /api/accounts/*            User money accounts
  /api/contacts/*            Counterparties and their bank accounts
  /api/expense-categories/*  EXPENSE classification
  /api/income-sources/*      INCOME classification
  /api/loans/*               Loan balances (read-only; loans move via
                             transactions)
  /api/transactions/*        The transaction engine
  /api/internal-transactions/* Account-to-account transfers
  /api/activity              Merged feed (+ CSV export)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/paisatrack/ledger/ledger"
	"github.com/paisatrack/ledger/store/sqlite"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *ledger.Engine
}

// NewHandler wires the handler context.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:  store,
		Engine: ledger.NewEngine(store),
	}
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Registration is the only unauthenticated endpoint.
		r.Post("/users", h.CreateUser)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAPIKey)

			r.Get("/users/me", h.GetCurrentUser)

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", h.ListAccounts)
				r.Post("/", h.CreateAccount)
				r.Get("/total-balance", h.GetTotalBalance)
				r.Get("/{id}", h.GetAccount)
				r.Put("/{id}", h.UpdateAccount)
				r.Delete("/{id}", h.DeleteAccount)
			})

			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", h.ListContacts)
				r.Post("/", h.CreateContact)
				r.Get("/{id}", h.GetContact)
				r.Put("/{id}", h.UpdateContact)
				r.Delete("/{id}", h.DeleteContact)
				r.Get("/{id}/accounts", h.ListContactAccounts)
				r.Post("/{id}/accounts", h.CreateContactAccount)
			})

			r.Delete("/contact-accounts/{id}", h.DeleteContactAccount)

			r.Route("/expense-categories", func(r chi.Router) {
				r.Get("/", h.ListExpenseCategories)
				r.Post("/", h.CreateExpenseCategory)
				r.Delete("/{id}", h.DeleteExpenseCategory)
			})

			r.Route("/income-sources", func(r chi.Router) {
				r.Get("/", h.ListIncomeSources)
				r.Post("/", h.CreateIncomeSource)
				r.Delete("/{id}", h.DeleteIncomeSource)
			})

			r.Route("/loans", func(r chi.Router) {
				r.Get("/", h.ListLoans)
				r.Get("/{id}", h.GetLoan)
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", h.ListTransactions)
				r.Post("/", h.CreateTransaction)
				r.Get("/{id}", h.GetTransaction)
				r.Delete("/{id}", h.DeleteTransaction)
			})

			r.Route("/internal-transactions", func(r chi.Router) {
				r.Get("/", h.ListTransfers)
				r.Post("/", h.CreateTransfer)
				r.Get("/{id}", h.GetTransfer)
				r.Delete("/{id}", h.DeleteTransfer)
			})

			r.Get("/activity", h.GetActivity)
			r.Get("/activity/export", h.ExportActivity)
		})
	})

	return r
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

type contextKey string

const userContextKey contextKey = "user"

// RequireAPIKey resolves the X-API-Key header to a user and injects it
// into the request context. Missing or unknown keys get a 401.
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			writeError(w, http.StatusUnauthorized, "Missing X-API-Key header", nil)
			return
		}

		user, err := h.Store.GetUserByAPIKey(r.Context(), key)
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid API key", nil)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", nil)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser returns the authenticated user injected by RequireAPIKey.
func currentUser(r *http.Request) *ledger.User {
	u, _ := r.Context().Value(userContextKey).(*ledger.User)
	return u
}
