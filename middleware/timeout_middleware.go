package middleware

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"portal-rpc/message"
)

var ErrTimeout = errors.New("middleware: request timed out")

type outcome struct {
	resp message.Response
	err  error
}

// Timeout bounds the handler with a deadline. The handler keeps running after the deadline
// but its result is discarded. A panic in the handler is returned as ErrPanic.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (message.Response, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan outcome, 1)
			go func() {
				// a panic here is outside the caller's Recover
				defer func() {
					if p := recover(); p != nil {
						done <- outcome{err: errors.Wrapf(ErrPanic, "%v", p)}
					}
				}()
				resp, err := next(ctx, req)
				done <- outcome{resp, err}
			}()

			select {
			case o := <-done:
				return o.resp, o.err
			case <-ctx.Done():
				return message.Response{}, errors.Wrapf(ErrTimeout, "after %s", timeout)
			}
		}
	}
}
