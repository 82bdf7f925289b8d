package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupRouter creates and configures the HTTP router
func SetupRouter(handler *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Register routes
	handler.RegisterRoutes(r)

	return r
}
