// Package server assembles the HTTP surface: routing, middleware, and
// lifecycle of the listener.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/3leaps/ticketops/internal/dispatch"
	apperrors "github.com/3leaps/ticketops/internal/errors"
	"github.com/3leaps/ticketops/internal/server/handlers"
	"github.com/3leaps/ticketops/internal/server/middleware"
	"github.com/3leaps/ticketops/pkg/jobstore"
	"github.com/3leaps/ticketops/pkg/ops"
	"github.com/3leaps/ticketops/pkg/queue"
)

// Deps carries the collaborators the API routes need. Zero-value Deps
// serves only the health and version endpoints.
type Deps struct {
	Store      *jobstore.Store
	Queue      queue.Queue
	Registry   *ops.Registry
	Dispatcher *dispatch.Dispatcher
	Log        *zap.Logger
}

// Timeouts bounds the listener's request handling.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

// Server is the HTTP surface.
type Server struct {
	host   string
	port   int
	router chi.Router
	http   *http.Server
}

// New builds the server with all routes registered. The operation and job
// routes mount only when their collaborators are present.
func New(host string, port int, deps Deps) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		resp := apperrors.NewHTTPErrorResponse("NOT_FOUND", fmt.Sprintf("no route for %s", req.URL.Path))
		apperrors.WriteHTTPError(w, http.StatusNotFound, resp)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		resp := apperrors.NewHTTPErrorResponse("METHOD_NOT_ALLOWED", fmt.Sprintf("%s not allowed on %s", req.Method, req.URL.Path))
		apperrors.WriteHTTPError(w, http.StatusMethodNotAllowed, resp)
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	if deps.Registry != nil && deps.Dispatcher != nil {
		oh := &handlers.OpsHandler{Registry: deps.Registry, Dispatcher: deps.Dispatcher, Log: deps.Log}
		r.Route("/v1/ops", func(r chi.Router) {
			r.Get("/", oh.List)
			r.Get("/{slug}/fields", oh.Fields)
			r.Post("/{slug}/execute", oh.Execute)
		})
	}

	if deps.Store != nil {
		jh := &handlers.JobsHandler{Store: deps.Store, Queue: deps.Queue, Registry: deps.Registry, Log: deps.Log}
		r.Route("/v1/jobs", func(r chi.Router) {
			r.Get("/", jh.List)
			r.Get("/{id}", jh.Get)
			r.Post("/{id}/cancel", jh.Cancel)
			r.Delete("/{id}", jh.Delete)
			r.Get("/{id}/export", jh.Export)
		})
	}

	return &Server{host: host, port: port, router: r}
}

// Handler returns the root handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

// Start serves requests until the listener fails or Shutdown runs.
func (s *Server) Start(t Timeouts) error {
	s.http = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  t.Read,
		WriteTimeout: t.Write,
		IdleTimeout:  t.Idle,
	}
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
