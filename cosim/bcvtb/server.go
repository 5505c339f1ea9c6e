package bcvtb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Server listens for the single companion connection.
type Server struct {
	ln      *net.TCPListener
	timeout time.Duration
}

// Listen binds an ephemeral TCP port on host. exchangeTimeout is applied to
// the accepted connection.
func Listen(host string, exchangeTimeout time.Duration) (*Server, error) {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP(host), Port: 0})
	if err != nil {
		return nil, fmt.Errorf("binding listener on %q: %w", host, err)
	}
	return &Server{ln: ln, timeout: exchangeTimeout}, nil
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Accept blocks until the peer connects or ctx is done, in which case
// context.Cause(ctx) is returned. The listener is closed after the first
// connection: exactly one peer is served.
func (s *Server) Accept(ctx context.Context) (*Conn, error) {
	if dl, ok := ctx.Deadline(); ok {
		if err := s.ln.SetDeadline(dl); err != nil {
			return nil, fmt.Errorf("setting accept deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.ln.SetDeadline(time.Now())
	})
	defer stop()

	c, err := s.ln.Accept()
	if err != nil {
		if _, ok := ctx.Deadline(); ok && IsTimeout(err) {
			// the listener deadline may expire just before the context does
			<-ctx.Done()
		}
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, fmt.Errorf("accepting peer: %w", err)
	}
	if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.Close()
		return nil, fmt.Errorf("closing listener after accept: %w", err)
	}
	return NewConn(c, s.timeout), nil
}

// Close releases the listening socket. Closing twice is not an error.
func (s *Server) Close() error {
	if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
