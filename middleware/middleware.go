// Package middleware wraps the handling of inbound messages.
//
// The server runs every client message through a chain before acting on it;
// the client does the same for messages from the server. Chain(A, B, C)(h)
// is A(B(C(h))): A sees the request first and the result last.
package middleware

import (
	"context"
	"errors"

	"game-rpc/message"
	"game-rpc/protocol"
	"game-rpc/transport"
)

var (
	// ErrRateLimited is returned for requests over a peer's budget.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrPanic wraps a recovered handler panic.
	ErrPanic = errors.New("handler panic")
)

// Request is one decoded inbound message.
type Request struct {
	Peer    transport.PeerID
	Type    protocol.MsgType
	Message message.Message
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
