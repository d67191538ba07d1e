// Package web provides the HTTP server for a workspace of tables.
//
// EDUCATIONAL NOTES:
// ------------------
// This package sets up an HTTP server using the chi router, which is a
// lightweight, idiomatic Go router. Key concepts:
//
// 1. Middleware: Functions that wrap handlers to add cross-cutting concerns
//    like logging, recovery from panics, and request timeouts.
//
// 2. Graceful shutdown: When the server receives a termination signal,
//    it stops accepting new connections but finishes processing in-flight
//    requests before shutting down.
//
// 3. Dependency injection: The Workspace is passed into the server and
//    placed into each request context by the WithWorkspace middleware.
//
// 4. Streaming: a cursor can be read batch by batch over a websocket, so
//    a client sees the first rows before the last one is fetched.

package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/frootlab/rian-sub004/internal/logger"
	"github.com/frootlab/rian-sub004/internal/workspace"
)

// Server represents the HTTP server of a workspace.
type Server struct {
	router    *chi.Mux
	port      int
	workspace *workspace.Workspace
	log       *logger.Logger
}

// NewServer creates a new HTTP server with the given port and workspace.
// If ws is nil, the table endpoints answer 503 Service Unavailable.
func NewServer(port int, ws *workspace.Workspace) *Server {
	log := logger.Discard()
	if ws != nil {
		log = ws.Logger()
	}

	r := chi.NewRouter()

	// Middleware stack
	// RequestID: Adds a unique ID to each request for tracing
	r.Use(middleware.RequestID)
	// RealIP: Extracts the real client IP from X-Forwarded-For headers
	r.Use(middleware.RealIP)
	// Logger: Logs each request (method, path, duration) at info level
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log.Std(), NoColor: true}))
	// Recoverer: Catches panics in handlers, logs stack trace, returns 500
	r.Use(middleware.Recoverer)

	s := &Server{
		router:    r,
		port:      port,
		workspace: ws,
		log:       log,
	}

	s.routes()
	return s
}

// routes sets up all HTTP routes for the server.
func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(WithWorkspace(s.workspace))
		r.Use(RequireWorkspace)

		// The stream endpoint lives outside the timeout group; a
		// websocket may stay open longer than a request.
		r.Get("/tables/{name}/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			// Timeout: Cancels request context after 30 seconds
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/tables", s.handleAPITables)
			r.Get("/tables/{name}", s.handleAPITableSchema)
			r.Post("/tables/{name}/select", s.handleAPISelect)
			r.Post("/tables/{name}/commit", s.handleAPICommit)
			r.Post("/tables/{name}/rollback", s.handleAPIRollback)
			r.Post("/eval", s.handleAPIEval)
		})
	})
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth reports that the server is up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Run starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGTERM and SIGINT.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve starts the HTTP server and shuts it down when ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		ErrorLog:    s.log.Std(),
	}

	// Channel to receive server errors
	errChan := make(chan error, 1)

	// Start server in a goroutine
	go func() {
		s.log.Infof("starting server on port %d", s.port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		s.log.Infof("shutdown signal received, gracefully shutting down")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown with 5 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.log.Infof("server stopped")
	return nil
}
