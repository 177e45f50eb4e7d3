// Package transport moves game-rpc frames between the server and its clients.
//
// On the server a Hub holds one Peer per connection and fans frames out to a
// Targets selection. On the client a ClientTransport owns the single server
// connection: a background goroutine (recvLoop) reads frames in order and hands
// each one to the client's handler, and heartbeatLoop keeps the link alive.
//
//	app ──Send(Update)──┐
//	hb  ──Heartbeat─────┼──→ single TCP conn ──→ Server
//	                    │
//	recvLoop ←── frame(Call) ← Server    → handler(header, body)
package transport

import (
	"net"
	"sync"
	"time"

	"game-rpc/protocol"
)

// FrameHandler receives every non-heartbeat frame read from the connection,
// in arrival order, on the receive goroutine.
type FrameHandler func(h *protocol.Header, body []byte)

// ClientTransport manages the client's connection to the server.
type ClientTransport struct {
	conn    net.Conn
	out     frameWriter
	handler FrameHandler

	done     chan struct{}
	closeErr error
	once     sync.Once
}

// NewClientTransport starts the receive loop and, when heartbeat > 0, a loop
// sending heartbeat frames at that interval.
func NewClientTransport(conn net.Conn, handler FrameHandler, heartbeat time.Duration) *ClientTransport {
	t := &ClientTransport{
		conn:    conn,
		handler: handler,
		done:    make(chan struct{}),
	}
	t.out.w = conn
	go t.recvLoop()
	if heartbeat > 0 {
		go t.heartbeatLoop(heartbeat)
	}
	return t
}

// Send writes one frame to the server.
func (t *ClientTransport) Send(mt protocol.MsgType, body []byte) error {
	return t.out.write(mt, body)
}

// Done is closed when the connection is gone.
func (t *ClientTransport) Done() <-chan struct{} {
	return t.done
}

// Err returns the error that ended the receive loop, once Done is closed.
func (t *ClientTransport) Err() error {
	<-t.done
	return t.closeErr
}

// Conn returns the underlying connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

// Close closes the connection and waits for the receive loop to stop.
func (t *ClientTransport) Close() error {
	err := t.conn.Close()
	<-t.done
	return err
}

// recvLoop is the only reader of the connection; frame boundaries can only be
// parsed sequentially.
func (t *ClientTransport) recvLoop() {
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.finish(err)
			return
		}
		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}
		if t.handler != nil {
			t.handler(header, body)
		}
	}
}

func (t *ClientTransport) finish(err error) {
	t.once.Do(func() {
		t.closeErr = err
		close(t.done)
	})
}

func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.out.write(protocol.MsgTypeHeartbeat, nil); err != nil {
				return
			}
		}
	}
}
