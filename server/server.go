// Package server runs the accept loop shared by the gateway and the microservices.
//
// Every accepted connection becomes one handling unit that carries exactly one request:
//
//	Accept → read Request → middleware chain → handler → write Response → close
//
// Units run concurrently with the accept loop, bounded by MaxConns. Cancelling the context
// given to Serve stops accepting; units already running finish before Serve returns.
package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"portal-rpc/logging"
	"portal-rpc/message"
	"portal-rpc/middleware"
	"portal-rpc/transport"
)

const DefaultMaxConns = 64

var (
	// ErrDrop makes a unit close its connection without writing a response.
	ErrDrop = errors.New("server: drop connection")

	ErrShutdownTimeout = errors.New("server: timeout waiting for handling units")
)

// Server serves one request per connection with a handler chain.
type Server struct {
	// MaxConns bounds concurrent handling units. Zero means DefaultMaxConns.
	MaxConns int
	// IOTimeout bounds each read and write on a connection. Zero disables it.
	IOTimeout time.Duration
	// ShutdownTimeout bounds the wait for running units once accepting stopped. Zero waits
	// forever.
	ShutdownTimeout time.Duration

	name        string
	base        middleware.HandlerFunc
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
	prepared    sync.Once
	log         zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	shutdown atomic.Bool
}

// New returns a server named after its role, used in logs.
func New(name string, handler middleware.HandlerFunc) *Server {
	return &Server{name: name, base: handler}
}

// Use registers a middleware. Middlewares apply in the order they are added, the first one
// outermost. Use must be called before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// prepare builds the handler chain once; middlewares added later are ignored.
func (s *Server) prepare() {
	s.prepared.Do(func() {
		s.log = logging.For(s.name)
		s.handler = middleware.Chain(s.middlewares...)(s.base)
	})
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "%s: listen %s", s.name, addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes ln and waits for running
// units. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.prepare()
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		s.shutdown.Store(true)
		ln.Close()
	})
	defer stop()

	limit := s.MaxConns
	if limit <= 0 {
		limit = DefaultMaxConns
	}
	slots := make(chan struct{}, limit)
	// units outlive the accept loop's cancellation
	unitCtx := context.WithoutCancel(ctx)

	s.log.Info().Str("addr", ln.Addr().String()).Int("max_conns", limit).Msg("listening")
	var acceptErr error
loop:
	for !s.shutdown.Load() {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			break loop
		}
		c, err := ln.Accept()
		if err != nil {
			<-slots
			if s.shutdown.Load() || ctx.Err() != nil {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			acceptErr = errors.Wrapf(err, "%s: accept", s.name)
			break
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-slots }()
			_ = s.ServeOne(unitCtx, c)
		}()
	}
	ln.Close()

	if err := s.wait(s.ShutdownTimeout); err != nil {
		return err
	}
	s.log.Info().Msg("stopped")
	return acceptErr
}

// Shutdown stops accepting and waits up to timeout for running units.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shutdown.Store(true)
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	return s.wait(timeout)
}

// Wait blocks until every handling unit started by Serve has finished, however long that
// takes. Call it after Serve or Shutdown returned ErrShutdownTimeout.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.Wrapf(ErrShutdownTimeout, "%s after %s", s.name, timeout)
	}
}

// ServeOne runs one handling unit on c and closes it. The returned error reports why the
// unit ended without a response, or why the response could not be written. A handler error
// other than ErrDrop is answered with a result response.
func (s *Server) ServeOne(ctx context.Context, c net.Conn) error {
	defer c.Close()
	s.prepare()
	conn := transport.NewConn(c, s.IOTimeout)
	defer conn.WatchContext(ctx)()

	log := s.log.With().Str("remote", c.RemoteAddr().String()).Logger()
	state := StateAccepted
	fail := func(err error) error {
		log.Warn().Err(err).Stringer("state", state).Msg("connection closed on error")
		return err
	}

	state = StateReading
	req, err := message.ReadRequest(conn)
	if err != nil {
		return fail(errors.Wrap(err, "read request"))
	}

	state = StateDispatching
	resp, err := s.handler(ctx, &req)
	if errors.Is(err, ErrDrop) {
		return fail(err)
	}
	if err != nil {
		resp = message.Errorf("error: %v", err)
	}

	state = StateWriting
	if err := message.WriteResponse(conn, &resp); err != nil {
		return fail(errors.Wrap(err, "write response"))
	}
	state = StateClosed
	log.Debug().Str("variant", req.Variant()).Str("response", resp.Variant()).Stringer("state", state).Msg("unit done")
	return nil
}
