package middleware

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"portal-rpc/message"
)

var ErrPanic = errors.New("middleware: handler panicked")

// Recover turns a handler panic into an error so one bad request cannot take the process
// down.
func Recover(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (resp message.Response, err error) {
			defer func() {
				if p := recover(); p != nil {
					logger.Error().Interface("panic", p).Str("variant", req.Variant()).Msg("handler panic")
					resp, err = message.Response{}, errors.Wrapf(ErrPanic, "%v", p)
				}
			}()
			return next(ctx, req)
		}
	}
}
