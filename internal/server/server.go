// Package server exposes the read-only operator API: instance listings,
// firing cycles, queue occupancy, and health. The catalog file stays the
// single write path for task definitions; nothing here mutates state.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/tempo/internal/catalog"
	"github.com/me/tempo/internal/store"
)

// Server is the tempo status API server.
type Server struct {
	router     chi.Router
	logger     *slog.Logger
	store      store.Store
	catalog    catalog.Catalog
	queueSlots map[string]int
	startTime  time.Time
}

// New creates a Server with all routes registered.
func New(st store.Store, cat catalog.Catalog, queueSlots map[string]int, logger *slog.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		logger:     logger.With("component", "server"),
		store:      st,
		catalog:    cat,
		queueSlots: queueSlots,
		startTime:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/instances", func(r chi.Router) {
			r.Get("/", s.handleListInstances)
			r.Get("/{id}", s.handleGetInstance)
		})

		r.Route("/cycles", func(r chi.Router) {
			r.Get("/", s.handleListCycles)
			r.Get("/{id}/instances", s.handleCycleInstances)
		})

		r.Get("/queues", s.handleQueues)
		r.Get("/tasks", s.handleListTasks)
	})
}
