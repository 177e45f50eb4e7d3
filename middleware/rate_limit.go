package middleware

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"game-rpc/transport"
)

// RateLimiter keeps one token bucket per peer.
type RateLimiter struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	peers map[transport.PeerID]*rate.Limiter
}

// NewRateLimiter allows each peer r requests per second with bursts of burst.
func NewRateLimiter(r float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit: rate.Limit(r),
		burst: burst,
		peers: make(map[transport.PeerID]*rate.Limiter),
	}
}

// Allow takes one token from id's bucket.
func (l *RateLimiter) Allow(id transport.PeerID) bool {
	l.mu.Lock()
	lim, ok := l.peers[id]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.peers[id] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Forget drops id's bucket. Call it when the peer disconnects.
func (l *RateLimiter) Forget(id transport.PeerID) {
	l.mu.Lock()
	delete(l.peers, id)
	l.mu.Unlock()
}

// Middleware rejects requests from a peer over its budget.
func (l *RateLimiter) Middleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if !l.Allow(req.Peer) {
				return fmt.Errorf("%w: peer %s", ErrRateLimited, req.Peer)
			}
			return next(ctx, req)
		}
	}
}

// RateLimit is NewRateLimiter(r, burst).Middleware().
func RateLimit(r float64, burst int) Middleware {
	return NewRateLimiter(r, burst).Middleware()
}
