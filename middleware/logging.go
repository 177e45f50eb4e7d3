package middleware

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Logging logs every request at debug level and failures at warn.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			fields := []zap.Field{
				zap.String("peer", string(req.Peer)),
				zap.Stringer("type", req.Type),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("request failed", append(fields, zap.Error(err))...)
				return err
			}
			logger.Debug("request handled", fields...)
			return nil
		}
	}
}

// Recover turns a panicking handler into an error.
func Recover(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic",
						zap.String("peer", string(req.Peer)),
						zap.Stringer("type", req.Type),
						zap.Any("panic", r),
						zap.Stack("stack"))
					err = fmt.Errorf("%w: %v", ErrPanic, r)
				}
			}()
			return next(ctx, req)
		}
	}
}
