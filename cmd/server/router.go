package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/storyfab/storyfab-api/internal/api"
	apiMiddleware "github.com/storyfab/storyfab-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	authHandler := api.NewAuthHandler(
		app.userStore,
		app.jwtService,
		app.passwordHasher,
		app.passwordVerifier,
	)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	bookHandler := api.NewBookHandler(app.bookService)
	wsHandler := api.NewWSHandler(app.registry, app.jwtService, app.logger)

	r.Route("/api", func(r chi.Router) {
		// Authentication endpoints (public)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		// Websocket upgrade authenticates via query parameter, not header.
		r.Get("/ws", wsHandler.Serve)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/books", bookHandler.Create)
			r.Get("/books", bookHandler.List)
			r.Get("/books/{bookID}", bookHandler.Get)
			r.Put("/books/{bookID}", bookHandler.Update)
			r.Delete("/books/{bookID}", bookHandler.Delete)

			r.Post("/books/{bookID}/generate", bookHandler.Generate)
			r.Get("/books/generation-status/{taskID}", bookHandler.GenerationStatus)
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
