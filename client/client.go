// Package client connects a game client to a game-rpc server.
//
// The client mirrors the server's replicated variables, asks the server to
// change them, and runs the remote calls the server sends through an
// rpc.Router. Frames are handled in arrival order on the transport's receive
// goroutine.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"game-rpc/message"
	"game-rpc/middleware"
	"game-rpc/protocol"
	"game-rpc/rpc"
	"game-rpc/transport"
)

// ErrUnknownVar is returned by RequestChange for a variable the server never
// defined.
var ErrUnknownVar = errors.New("client: unknown variable")

// Var is the client's copy of a replicated variable.
type Var struct {
	ServerName string
	ClientName string
	Default    string
	Value      string
}

type Options struct {
	Logger *zap.Logger
	// Router runs incoming calls; nil creates an empty one.
	Router *rpc.Router
	// Heartbeat is the interval between heartbeat frames; zero sends none.
	Heartbeat time.Duration
	// OnNotice receives server notices.
	OnNotice func(text string)
	// OnUpdate runs after a mirrored variable changed.
	OnUpdate func(v Var, old string)
	// Middlewares wrap the handling of every server message.
	Middlewares []middleware.Middleware
	// CallTimeout bounds the context each message is handled with; zero
	// leaves it unbounded.
	CallTimeout time.Duration
}

type Client struct {
	transport *transport.ClientTransport
	router    *rpc.Router
	asm       *rpc.Reassembler
	handler   middleware.HandlerFunc
	logger    *zap.Logger
	onNotice  func(string)
	onUpdate  func(Var, string)

	mu   sync.RWMutex
	vars map[string]*Var // by lower-cased client name
}

// Dial connects to the server at address.
func Dial(ctx context.Context, network, address string, opts Options) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return New(conn, opts), nil
}

// New wraps an established connection.
func New(conn net.Conn, opts Options) *Client {
	c := &Client{
		router:   opts.Router,
		asm:      rpc.NewReassembler(),
		logger:   opts.Logger,
		onNotice: opts.OnNotice,
		onUpdate: opts.OnUpdate,
		vars:     make(map[string]*Var),
	}
	if c.router == nil {
		c.router = rpc.NewRouter()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	mws := opts.Middlewares
	if opts.CallTimeout > 0 {
		mws = append([]middleware.Middleware{middleware.Timeout(opts.CallTimeout)}, mws...)
	}
	c.handler = middleware.Chain(mws...)(c.handleMessage)
	c.transport = transport.NewClientTransport(conn, c.handleFrame, opts.Heartbeat)
	return c
}

// Router returns the router incoming calls are dispatched to.
func (c *Client) Router() *rpc.Router { return c.router }

// Ready tells the server the client has loaded. The server answers with the
// definitions of every replicated variable.
func (c *Client) Ready() error {
	return c.send(&message.Ready{})
}

// Get returns the mirrored variable known to the client as clientName.
func (c *Client) Get(clientName string) (Var, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vars[strings.ToLower(clientName)]
	if !ok {
		return Var{}, false
	}
	return *v, true
}

// Vars returns every mirrored variable ordered by client name.
func (c *Client) Vars() []Var {
	c.mu.RLock()
	out := make([]Var, 0, len(c.vars))
	for _, v := range c.vars {
		out = append(out, *v)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ClientName < out[j].ClientName })
	return out
}

// RequestChange asks the server to set the variable known as clientName. The
// local copy changes only when the server broadcasts the update.
func (c *Client) RequestChange(clientName, value string) error {
	v, ok := c.Get(clientName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVar, clientName)
	}
	return c.send(&message.RequestChange{ServerName: v.ServerName, Value: value})
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.transport.Done() }

func (c *Client) Close() error { return c.transport.Close() }

func (c *Client) send(m message.Message) error {
	body, err := message.Marshal(m)
	if err != nil {
		return err
	}
	return c.transport.Send(m.Type(), body)
}

func (c *Client) handleFrame(h *protocol.Header, body []byte) {
	m, err := message.Unmarshal(h.MsgType, body)
	if err != nil {
		c.logger.Warn("dropping malformed message", zap.Stringer("type", h.MsgType), zap.Error(err))
		return
	}
	req := &middleware.Request{Peer: transport.ServerPeer, Type: h.MsgType, Message: m}
	if err := c.handler(context.Background(), req); err != nil {
		c.logger.Warn("handling message", zap.Stringer("type", h.MsgType), zap.Error(err))
	}
}

// handleMessage is the end of the middleware chain.
func (c *Client) handleMessage(ctx context.Context, req *middleware.Request) error {
	switch m := req.Message.(type) {
	case *message.Call:
		return c.router.Invoke(ctx, m)
	case *message.CallChunk:
		body, done, err := c.asm.Add(m)
		if err != nil || !done {
			return err
		}
		return c.router.Dispatch(ctx, body)
	case *message.DefineVar:
		c.mu.Lock()
		c.vars[strings.ToLower(m.ClientName)] = &Var{
			ServerName: m.ServerName,
			ClientName: m.ClientName,
			Default:    m.Default,
			Value:      m.Current,
		}
		c.mu.Unlock()
	case *message.Update:
		c.mu.Lock()
		v, ok := c.vars[strings.ToLower(m.ClientName)]
		if !ok {
			c.mu.Unlock()
			c.logger.Debug("update for undefined variable", zap.String("name", m.ClientName))
			return nil
		}
		old := v.Value
		v.Value = m.New
		snapshot := *v
		c.mu.Unlock()
		if c.onUpdate != nil {
			c.onUpdate(snapshot, old)
		}
	case *message.Notice:
		if c.onNotice != nil {
			c.onNotice(m.Text)
		}
	default:
		return fmt.Errorf("client: unexpected %s from server", req.Type)
	}
	return nil
}
