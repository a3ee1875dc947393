package transport

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/cockroachdb/errors"
)

// Conn is a TCP connection carrying exactly one request and one response.
// Every ReadExact and WriteExact call gets its own deadline of Timeout from the moment it
// starts; a zero Timeout leaves deadlines to the caller.
type Conn struct {
	net.Conn
	timeout time.Duration
}

// NewConn wraps an accepted or dialed connection.
func NewConn(c net.Conn, timeout time.Duration) *Conn {
	return &Conn{Conn: c, timeout: timeout}
}

// Dial connects to addr over TCP. ctx bounds the connect only; use WatchContext to tie the
// connection's I/O to a context.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return NewConn(c, timeout), nil
}

func (c *Conn) ReadExact(p []byte) error {
	if c.timeout > 0 {
		if err := c.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return c.mapErr(err)
		}
	}
	return c.mapErr(ReadExact(c.Conn, p))
}

func (c *Conn) WriteExact(p []byte) error {
	if c.timeout > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return c.mapErr(err)
		}
	}
	return c.mapErr(WriteExact(c.Conn, p))
}

// WatchContext expires the connection's deadlines when ctx is done, unblocking any pending
// read or write. The returned function detaches the watch.
func (c *Conn) WatchContext(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = c.SetDeadline(time.Now())
	})
}

func (c *Conn) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return errors.Mark(err, ErrClosed)
	}
	return err
}
