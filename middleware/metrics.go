package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts requests by type and result and observes their duration.
func Metrics(reg prometheus.Registerer, namespace string) Middleware {
	factory := promauto.With(reg)
	requests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "requests",
		Name:      "total",
		Help:      "Inbound messages handled, by type and result.",
	}, []string{"type", "result"})
	duration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "requests",
		Name:      "duration_seconds",
		Help:      "Time spent handling inbound messages.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"type"})

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			duration.WithLabelValues(req.Type.String()).Observe(time.Since(start).Seconds())
			requests.WithLabelValues(req.Type.String(), result(err)).Inc()
			return err
		}
	}
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimited):
		return "limited"
	case errors.Is(err, ErrPanic):
		return "panic"
	}
	return "error"
}
