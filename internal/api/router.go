/**
 * @description
 * This file sets up the HTTP router for the aggregator-service. It defines
 * the API endpoints, associates them with their handlers, and applies the
 * session-auth middleware to the protected routes.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/truestack/aggregator-service/internal/app"
)

// Routes creates and returns the router for the aggregator service.
func Routes(h *AggregatorHandlers, service *app.Service) http.Handler {
	r := chi.NewRouter()

	// Standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept", "Content-Type", SessionTokenHeader},
		ExposedHeaders: []string{SessionTokenHeader},
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Consent flow entry and callback are unauthenticated: the session
	// token only exists after the callback completes.
	r.Get("/", h.AuthRedirectHandler)
	r.Get("/callback", h.CallbackHandler)

	// Group routes that require a resolvable session token.
	r.Group(func(r chi.Router) {
		r.Use(SessionAuthMiddleware(service))

		r.Get("/user/transactions", h.TransactionsHandler)
		r.Get("/user/statistics", h.StatisticsHandler)
	})

	return r
}
