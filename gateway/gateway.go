// Package gateway runs the middleware server. It reads each request, forwards it unchanged
// to the microservice that owns its domain, and relays the backend's response.
package gateway

import (
	"context"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"portal-rpc/client"
	"portal-rpc/logging"
	"portal-rpc/message"
	"portal-rpc/middleware"
	"portal-rpc/server"
)

var ErrBackend = errors.New("gateway: backend unavailable")

type Options struct {
	MaxConns        int
	IOTimeout       time.Duration
	ShutdownTimeout time.Duration
	// BackendTimeout bounds the whole exchange with a microservice.
	BackendTimeout time.Duration
	RateLimit      float64
	Burst          int
}

type Gateway struct {
	backends *client.Client
	opts     Options
	srv      *server.Server
	log      zerolog.Logger
}

// New returns a gateway that reaches microservices through backends.
func New(backends *client.Client, opts Options) *Gateway {
	g := &Gateway{
		backends: backends,
		opts:     opts,
		log:      logging.For("gateway"),
	}
	srv := server.New("gateway", g.Forward)
	srv.MaxConns = opts.MaxConns
	srv.IOTimeout = opts.IOTimeout
	srv.ShutdownTimeout = opts.ShutdownTimeout
	srv.Use(middleware.Recover(g.log))
	srv.Use(middleware.Logging(g.log))
	if opts.RateLimit > 0 {
		srv.Use(middleware.RateLimit(opts.RateLimit, max(opts.Burst, 1)))
	}
	if opts.BackendTimeout > 0 {
		srv.Use(middleware.Timeout(opts.BackendTimeout))
	}
	g.srv = srv
	return g
}

// Forward relays req to its backend and returns the backend's response as is. Failing to reach the backend is reported to the
// client as a result response.
func (g *Gateway) Forward(ctx context.Context, req *message.Request) (message.Response, error) {
	addr, err := g.backends.Resolve(ctx, req)
	if err != nil {
		return message.Response{}, err
	}
	// the Timeout middleware bounds ctx by BackendTimeout
	resp, err := client.Send(ctx, addr, req, g.opts.IOTimeout)
	if err != nil {
		g.log.Warn().Err(err).Str("backend", addr).Str("variant", req.Variant()).Msg("backend exchange failed")
		return message.Response{}, errors.Wrapf(ErrBackend, "%s", addr)
	}
	return resp, nil
}

func (g *Gateway) Addr() net.Addr { return g.srv.Addr() }

// Serve accepts clients on ln until ctx is done and the running exchanges finished.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	return g.srv.Serve(ctx, ln)
}

func (g *Gateway) ListenAndServe(ctx context.Context, addr string) error {
	return g.srv.ListenAndServe(ctx, addr)
}
