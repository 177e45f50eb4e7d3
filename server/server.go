// Package server runs the game-rpc server: it accepts client connections,
// keeps the replicated variables in sync and sends remote calls.
//
// Request processing pipeline:
//
//	Accept conn → serveConn (one goroutine per peer reads frames)
//	  → inbound channel → loop (single dispatch goroutine)
//	    → message.Unmarshal → Middleware Chain → handleMessage → registry
//
// The registry and the variable table are only touched by the dispatch loop.
// Other goroutines hand work to it with Do.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"game-rpc/convar"
	"game-rpc/events"
	"game-rpc/message"
	"game-rpc/middleware"
	"game-rpc/protocol"
	"game-rpc/registry"
	"game-rpc/rpc"
	"game-rpc/transport"
)

var (
	// ErrServerClosed is returned by Do after Shutdown.
	ErrServerClosed = errors.New("server: closed")
	// ErrUnexpectedMessage is returned for message types clients may not send.
	ErrUnexpectedMessage = errors.New("server: unexpected message")
)

// AccessFunc decides the access level of a new peer.
type AccessFunc func(p *transport.Peer) transport.Level

type Options struct {
	Logger *zap.Logger
	Bus    events.Bus   // nil creates a private bus
	Store  convar.Store // nil keeps archived variables in memory
	// Registerer receives the transport and request metrics; nil disables them.
	Registerer prometheus.Registerer
	Access     AccessFunc
	// ReadTimeout drops a peer silent for longer; zero never drops.
	ReadTimeout time.Duration
	// RateLimit caps requests per second per peer; zero disables it.
	RateLimit float64
	RateBurst int
}

type inbound struct {
	peer   *transport.Peer
	header *protocol.Header
	body   []byte
}

// Server is the game-rpc server.
type Server struct {
	logger      *zap.Logger
	hub         *transport.Hub
	vars        *convar.Table
	registry    *registry.Registry
	dispatcher  *rpc.Dispatcher
	bus         events.Bus
	access      AccessFunc
	readTimeout time.Duration
	limiter     *middleware.RateLimiter

	middlewares []middleware.Middleware // registered with Use
	handler     middleware.HandlerFunc  // chain built by Serve
	builtin     []middleware.Middleware // recover, metrics, logging, rate limit

	inbound  chan inbound
	tasks    chan func()
	quit     chan struct{}
	loopDone chan struct{}

	mu        sync.Mutex
	listeners []net.Listener
	conns     sync.WaitGroup
	shutdown  atomic.Bool
	nextID    atomic.Uint64
	closeOnce sync.Once
}

// NewServer creates a server and starts its dispatch loop.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.New()
	}
	store := opts.Store
	if store == nil {
		store = convar.NewMemoryStore()
	}

	var hubMetrics *transport.Metrics
	s := &Server{
		logger:      logger,
		bus:         bus,
		access:      opts.Access,
		readTimeout: opts.ReadTimeout,
		inbound:     make(chan inbound, 64),
		tasks:       make(chan func()),
		quit:        make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
	s.builtin = append(s.builtin, middleware.Recover(logger))
	if opts.Registerer != nil {
		hubMetrics = transport.NewMetrics(opts.Registerer, "gamerpc")
		s.builtin = append(s.builtin, middleware.Metrics(opts.Registerer, "gamerpc"))
	}
	s.builtin = append(s.builtin, middleware.Logging(logger))
	if opts.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst)
		s.builtin = append(s.builtin, s.limiter.Middleware())
	}

	s.hub = transport.NewHub(logger.Named("hub"), hubMetrics)
	s.vars = convar.NewTable(store, logger.Named("convar"))
	s.registry = registry.New(s.hub, s.vars, bus, logger.Named("registry"))
	s.dispatcher = rpc.NewDispatcher(s.hub, logger.Named("rpc"))
	if _, err := events.OnPeerReady(bus, s.onPeerReady); err != nil {
		logger.Error("subscribe peer ready", zap.Error(err))
	}

	go s.loop()
	return s
}

func (s *Server) Hub() *transport.Hub         { return s.hub }
func (s *Server) Bus() events.Bus             { return s.bus }
func (s *Server) Dispatcher() *rpc.Dispatcher { return s.dispatcher }

// Registry returns the variable registry. Call its methods inside Do.
func (s *Server) Registry() *registry.Registry { return s.registry }

// Vars returns the variable table. Use it inside Do.
func (s *Server) Vars() *convar.Table { return s.vars }

// Use registers a middleware. Middlewares run in the order they are added,
// inside the built-in ones. Call before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Do runs fn on the dispatch loop and waits for it to return. It must not be
// called from the loop itself, which includes middlewares and event handlers.
func (s *Server) Do(fn func()) error {
	done := make(chan struct{})
	select {
	case s.tasks <- func() { defer close(done); fn() }:
	case <-s.quit:
		return ErrServerClosed
	}
	<-done
	return nil
}

// RegisterVar registers a replicated variable.
func (s *Server) RegisterVar(opts registry.Options) (*registry.Entry, error) {
	var (
		e   *registry.Entry
		err error
	)
	if derr := s.Do(func() { e, err = s.registry.Register(opts) }); derr != nil {
		return nil, derr
	}
	return e, err
}

// SetVar changes a registered variable as a console edit would.
func (s *Server) SetVar(serverName, value string) error {
	var err error
	if derr := s.Do(func() { err = s.registry.Set(serverName, value) }); derr != nil {
		return derr
	}
	return err
}

// VarValue returns the current value of a variable. It fails with
// registry.ErrUnknownVar for an unknown name and ErrServerClosed after
// Shutdown.
func (s *Server) VarValue(name string) (string, error) {
	var (
		value string
		ok    bool
	)
	if err := s.Do(func() {
		var v *convar.Var
		if v, ok = s.vars.Find(name); ok {
			value = v.String()
		}
	}); err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %q", registry.ErrUnknownVar, name)
	}
	return value, nil
}

// Call invokes fn on the peers selected by targets.
func (s *Server) Call(targets transport.Targets, fn string, args ...any) error {
	return s.dispatcher.Call(targets, fn, args...)
}

// Notify shows text to the peers selected by targets.
func (s *Server) Notify(targets transport.Targets, text string) error {
	body, err := message.Marshal(&message.Notice{Text: text})
	if err != nil {
		return err
	}
	return s.hub.Send(targets, protocol.MsgTypeNotice, body)
}

// SetAccess changes the access level of a connected peer.
func (s *Server) SetAccess(id transport.PeerID, level transport.Level) error {
	p, ok := s.hub.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", transport.ErrUnknownPeer, id)
	}
	p.SetLevel(level)
	return nil
}

// WatchStore applies values other writers put in w until ctx is done.
func (s *Server) WatchStore(ctx context.Context, w registry.Watcher) {
	s.registry.WatchStore(ctx, w, func(fn func()) { _ = s.Do(fn) })
}

// ListenAndServe listens on address and serves until Shutdown.
func (s *Server) ListenAndServe(network, address string) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown, which makes it return nil.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listeners = append(s.listeners, l)
	if s.handler == nil {
		chain := append(append([]middleware.Middleware{}, s.builtin...), s.middlewares...)
		s.handler = middleware.Chain(chain...)(s.handleMessage)
	}
	s.mu.Unlock()

	s.logger.Info("serving", zap.Stringer("addr", l.Addr()))
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.conns.Add(1)
		go s.serveConn(conn)
	}
}

// Shutdown stops accepting, disconnects every peer and stops the dispatch
// loop. It waits at most timeout for connection goroutines to finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.shutdown.Store(true)
	for _, l := range s.listeners {
		l.Close()
	}
	s.mu.Unlock()

	for _, p := range s.hub.Peers() {
		p.Close()
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("timeout waiting for connections to close")
	}
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.loopDone
	return err
}

// serveConn is the only reader of conn.
func (s *Server) serveConn(conn net.Conn) {
	defer s.conns.Done()
	id := transport.PeerID(fmt.Sprintf("peer-%d", s.nextID.Add(1)))
	p := transport.NewPeer(id, conn)
	if s.access != nil {
		p.SetLevel(s.access(p))
	}
	s.hub.Add(p)
	if s.shutdown.Load() {
		// accepted while Shutdown was closing the known peers
		s.hub.Remove(id)
		conn.Close()
		return
	}
	log := s.logger.With(zap.String("peer", string(id)), zap.Stringer("remote", conn.RemoteAddr()))
	log.Info("peer connected", zap.Stringer("access", p.Level()))

	defer func() {
		s.hub.Remove(id)
		if s.limiter != nil {
			s.limiter.Forget(id)
		}
		conn.Close()
		log.Info("peer disconnected")
	}()

	for {
		if s.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		header, body, err := protocol.Decode(conn)
		if err != nil {
			if !s.shutdown.Load() {
				log.Debug("read failed", zap.Error(err))
			}
			return
		}
		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}
		select {
		case s.inbound <- inbound{peer: p, header: header, body: body}:
		case <-s.quit:
			return
		}
	}
}

func (s *Server) loop() {
	defer close(s.loopDone)
	for {
		select {
		case in := <-s.inbound:
			s.dispatch(in)
		case fn := <-s.tasks:
			fn()
		case <-s.quit:
			return
		}
	}
}

func (s *Server) dispatch(in inbound) {
	m, err := message.Unmarshal(in.header.MsgType, in.body)
	if err != nil {
		s.logger.Warn("dropping malformed message",
			zap.String("peer", string(in.peer.ID())),
			zap.Stringer("type", in.header.MsgType),
			zap.Error(err))
		return
	}
	req := &middleware.Request{Peer: in.peer.ID(), Type: in.header.MsgType, Message: m}
	// failures are logged by the logging middleware
	_ = s.handler(context.Background(), req)
}

// handleMessage is the end of the middleware chain.
func (s *Server) handleMessage(_ context.Context, req *middleware.Request) error {
	p, ok := s.hub.Get(req.Peer)
	if !ok {
		return fmt.Errorf("%w: %s", transport.ErrUnknownPeer, req.Peer)
	}
	switch m := req.Message.(type) {
	case *message.Ready:
		if p.MarkReady() {
			s.bus.Publish(events.TopicPeerReady, events.PeerReady{Peer: p})
		}
	case *message.RequestChange:
		s.registry.OnClientRequestChange(p, m.ServerName, m.Value)
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedMessage, req.Type)
	}
	return nil
}

func (s *Server) onPeerReady(e events.PeerReady) {
	s.registry.OnPeerReady(e.Peer.ID())
}
