// Package middleware wraps request handlers with cross-cutting behavior. The gateway and the
// microservices build their handler chains from it.
package middleware

import (
	"context"

	"portal-rpc/message"
)

// HandlerFunc answers one request. A returned error means no regular response exists; the
// server decides how to report it.
type HandlerFunc func(ctx context.Context, req *message.Request) (message.Response, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares; the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
