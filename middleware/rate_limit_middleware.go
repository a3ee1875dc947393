package middleware

import (
	"context"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"portal-rpc/message"
)

var ErrRateLimited = errors.New("middleware: rate limit exceeded")

// RateLimit admits requests through a token bucket refilled at r per second. Requests over
// the limit are rejected immediately.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (message.Response, error) {
			if !limiter.Allow() {
				return message.Response{}, ErrRateLimited
			}
			return next(ctx, req)
		}
	}
}
