// Package microservice runs the server of one domain. It answers the requests of that
// domain from the domain's store and persists the store once it stops serving.
package microservice

import (
	"context"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"portal-rpc/logging"
	"portal-rpc/message"
	"portal-rpc/middleware"
	"portal-rpc/registry"
	"portal-rpc/server"
	"portal-rpc/service"
)

var ErrWrongDomain = errors.New("microservice: request belongs to another domain")

const deregisterTimeout = 2 * time.Second

type Options struct {
	MaxConns        int
	IOTimeout       time.Duration
	ShutdownTimeout time.Duration
	// RateLimit is requests per second; zero disables it.
	RateLimit float64
	Burst     int

	// Registry, when set, is told about the listening address for the lifetime of Run.
	Registry registry.Registry
	TTL      int64
}

type Microservice struct {
	handler service.Handler
	opts    Options
	srv     *server.Server
	log     zerolog.Logger
}

func New(h service.Handler, opts Options) *Microservice {
	m := &Microservice{
		handler: h,
		opts:    opts,
		log:     logging.For("microservice").With().Stringer("domain", h.Domain()).Logger(),
	}
	srv := server.New(h.Domain().String(), m.Handle)
	srv.MaxConns = opts.MaxConns
	srv.IOTimeout = opts.IOTimeout
	srv.ShutdownTimeout = opts.ShutdownTimeout
	srv.Use(middleware.Recover(m.log))
	srv.Use(middleware.Logging(m.log))
	if opts.RateLimit > 0 {
		srv.Use(middleware.RateLimit(opts.RateLimit, max(opts.Burst, 1)))
	}
	m.srv = srv
	return m
}

func (m *Microservice) Domain() message.Domain { return m.handler.Domain() }

// Handle checks that req belongs to this service's domain before handing it to the
// business handler. A misrouted request is answered with a result response.
func (m *Microservice) Handle(ctx context.Context, req *message.Request) (message.Response, error) {
	d, err := req.Domain()
	if err != nil {
		return message.Response{}, err
	}
	if d != m.Domain() {
		m.log.Warn().Str("variant", req.Variant()).Stringer("request_domain", d).Msg("misrouted request")
		return message.Response{}, errors.Wrapf(ErrWrongDomain, "%s request sent to %s service", req.Variant(), m.Domain())
	}
	return m.handler.Handle(ctx, req)
}

// ListenAndRun listens on addr and calls Run.
func (m *Microservice) ListenAndRun(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "%s: listen %s", m.Domain(), addr)
	}
	return m.Run(ctx, ln)
}

// Run serves on ln until ctx is done. The state is persisted only once every handling unit
// has finished, even when the server's shutdown timeout expired first; that timeout is
// still reported. The serve error wins over the persist error.
func (m *Microservice) Run(ctx context.Context, ln net.Listener) error {
	addr := ln.Addr().String()
	name := registry.ServiceName(m.Domain())
	if m.opts.Registry != nil {
		inst := registry.ServiceInstance{Addr: addr, Weight: 1}
		if err := m.opts.Registry.Register(ctx, name, inst, m.opts.TTL); err != nil {
			ln.Close()
			return errors.Wrapf(err, "%s: register", name)
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), deregisterTimeout)
			defer cancel()
			if err := m.opts.Registry.Deregister(dctx, name, addr); err != nil {
				m.log.Warn().Err(err).Msg("deregister failed")
			}
		}()
	}

	serveErr := m.srv.Serve(ctx, ln)
	if errors.Is(serveErr, server.ErrShutdownTimeout) {
		// units still running may yet acknowledge updates
		m.log.Warn().Err(serveErr).Msg("waiting for remaining units before persisting")
		m.srv.Wait()
	}
	persistErr := m.handler.Persist()
	if persistErr != nil {
		m.log.Error().Err(persistErr).Msg("persist failed")
	}
	if serveErr != nil {
		return serveErr
	}
	return persistErr
}
