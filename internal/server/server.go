// Package server implements the acceptor: bind, listen, and accept
// indefinitely, handing each connection to a worker goroutine running
// the request handler. Admission is gated inside the handler; accept
// itself is never throttled.
package server

import (
	"context"
	"fmt"
	"net"

	"github.com/ronin-proxy/ronin/internal/handler"
	"github.com/ronin-proxy/ronin/internal/ronlog"
)

// Server owns the listening socket.
type Server struct {
	ln      net.Listener
	handler *handler.Handler
}

// Listen binds 0.0.0.0:port and starts listening. Go's net package sets
// SO_REUSEADDR on the listening socket itself.
func Listen(port int, h *handler.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, fmt.Errorf("server: listen: %w", err)
	}
	return &Server{ln: ln, handler: h}, nil
}

// Addr returns the bound address, mainly useful for tests that bind
// port 0.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Close closes the listening socket.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Serve accepts indefinitely, spawning one worker goroutine per
// connection. It returns only when Accept fails, a fatal server error:
// the caller is expected to log it and exit.
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return fmt.Errorf("server: accept: %w", err)
		}

		ronlog.WithField("peer", conn.RemoteAddr()).Infof("accepted connection")
		go s.handler.Handle(ctx, conn)
	}
}
