// Package client sends requests to the gateway or directly to a microservice.
//
// Every call uses a fresh connection: connect, send the request, block for the response,
// close. A failure at any step ends the call; nothing is retried.
package client

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"portal-rpc/loadbalance"
	"portal-rpc/message"
	"portal-rpc/registry"
	"portal-rpc/store"
	"portal-rpc/transport"
)

// Send performs one request/response exchange with addr. timeout bounds the connect and
// each read and write; ctx cancellation aborts the exchange at any point.
func Send(ctx context.Context, addr string, req *message.Request, timeout time.Duration) (message.Response, error) {
	dialCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	conn, err := transport.Dial(dialCtx, addr, timeout)
	if err != nil {
		return message.Response{}, errors.Wrap(err, "connect")
	}
	defer conn.Close()
	defer conn.WatchContext(ctx)()

	if err := message.WriteRequest(conn, req); err != nil {
		return message.Response{}, phaseErr(ctx, err, "send to %s", addr)
	}
	resp, err := message.ReadResponse(conn)
	if err != nil {
		return message.Response{}, phaseErr(ctx, err, "receive from %s", addr)
	}
	return resp, nil
}

// phaseErr reports the context's error instead of the deadline it caused.
func phaseErr(ctx context.Context, err error, format string, args ...any) error {
	if ctx.Err() != nil {
		return errors.Wrapf(ctx.Err(), format, args...)
	}
	return errors.Wrapf(err, format, args...)
}

// Client resolves the microservice of a request's domain and sends the request there.
type Client struct {
	registry registry.Registry
	balancer loadbalance.Balancer
	timeout  time.Duration
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, timeout time.Duration) *Client {
	if bal == nil {
		bal = &loadbalance.RoundRobinBalancer{}
	}
	return &Client{registry: reg, balancer: bal, timeout: timeout}
}

// Resolve returns the address that should serve req. Keys that name the same record pick
// the same instance under key-affine balancers.
func (c *Client) Resolve(ctx context.Context, req *message.Request) (string, error) {
	d, err := req.Domain()
	if err != nil {
		return "", err
	}
	instances, err := c.registry.Discover(ctx, registry.ServiceName(d))
	if err != nil {
		return "", err
	}
	// pick on the stored form of the key so spellings of one record share a backend
	inst, err := c.balancer.Pick(store.Key(req.Key()), instances)
	if err != nil {
		return "", errors.Wrapf(err, "%s", d)
	}
	return inst.Addr, nil
}

// Call resolves the backend of req and performs one exchange with it.
func (c *Client) Call(ctx context.Context, req *message.Request) (message.Response, error) {
	addr, err := c.Resolve(ctx, req)
	if err != nil {
		return message.Response{}, err
	}
	return Send(ctx, addr, req, c.timeout)
}
