package server

import (
	"context"
	"net/http"
	"time"
)

// Server is the operational HTTP server, with controlled startup and
// shutdown.
type Server struct {
	server *http.Server
}

// ListenAndServe blocks until the server is stopped or fails. After
// Shutdown it returns http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server within the deadline of ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// NewServer creates a server listening on address and serving the
// operational routes. metrics may be nil.
func NewServer(address string, rules RuleSource, metrics http.Handler) *Server {
	router := NewOpsRouter(rules, metrics)
	s := Server{&http.Server{
		Addr:           address,
		Handler:        router.Mux(),
		ReadTimeout:    time.Second * 3,
		WriteTimeout:   time.Second * 10,
		MaxHeaderBytes: 1024 * 10,
	}}

	return &s
}
