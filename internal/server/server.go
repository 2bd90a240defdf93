package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server timeouts. WriteTimeout covers a full retry session: three 30s
// attempts plus backoff.
const (
	ReadTimeout  = 10 * time.Second
	WriteTimeout = 150 * time.Second
	IdleTimeout  = 120 * time.Second
)

// Server wraps http.Server with skin-relay timeouts.
type Server struct {
	httpServer *http.Server
	addr       string
}

// NewServer creates a Server. With enableHTTP2 it also accepts HTTP/2
// cleartext (h2c) connections.
func NewServer(addr string, handler http.Handler, enableHTTP2 bool) *Server {
	if enableHTTP2 {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}
	return &Server{
		addr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       ReadTimeout,
			ReadHeaderTimeout: ReadTimeout,
			WriteTimeout:      WriteTimeout,
			IdleTimeout:       IdleTimeout,
		},
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe starts the server (blocks).
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln (blocks).
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
