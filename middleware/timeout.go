package middleware

import (
	"context"
	"time"
)

// Timeout gives each handler a context that expires after timeout. Handlers
// run on the caller's goroutine and are not interrupted; one that returns
// after the deadline without an error is reported as context.DeadlineExceeded.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err := next(ctx, req)
			if err == nil && ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}
