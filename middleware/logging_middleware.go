package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"portal-rpc/message"
)

// Logging records every request with its variant, key, outcome and duration.
func Logging(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (message.Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			event := logger.Info()
			if err != nil {
				event = logger.Warn().Err(err)
			} else if resp.Type == message.ResponseResult {
				event = event.Str("result", resp.Result.Message.String())
			}
			event.
				Str("variant", req.Variant()).
				Str("key", req.Key()).
				Str("response", resp.Variant()).
				Dur("duration", time.Since(start)).
				Msg("request")
			return resp, err
		}
	}
}
