package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"game-rpc/codec"
	"game-rpc/message"
	"game-rpc/protocol"
)

// ErrUnknownFunction is returned when a call names nothing registered.
var ErrUnknownFunction = errors.New("rpc: unknown function")

// Func is a remotely callable function.
type Func func(ctx context.Context, args []codec.Value) error

// Router resolves incoming calls to local functions. Plain functions are
// registered under any name, including dotted paths; services expose their
// methods as "Service.Method". An exact function name wins over a service.
type Router struct {
	mu       sync.RWMutex
	funcs    map[string]Func
	services map[string]*service
	fallback FallbackFunc
}

// FallbackFunc receives calls no registered function matches.
type FallbackFunc func(ctx context.Context, function string, args []codec.Value) error

func NewRouter() *Router {
	return &Router{
		funcs:    make(map[string]Func),
		services: make(map[string]*service),
	}
}

// Handle registers fn under name, replacing any previous function.
func (r *Router) Handle(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Fallback sets the function run for unknown calls. Without one they fail
// with ErrUnknownFunction.
func (r *Router) Fallback(fn FallbackFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = fn
}

// Register exposes the methods of rcvr under its type name.
func (r *Router) Register(rcvr any) error {
	return r.RegisterName("", rcvr)
}

// RegisterName exposes the methods of rcvr under name.
func (r *Router) RegisterName(name string, rcvr any) error {
	svc, err := newService(name, rcvr)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[svc.name]; ok {
		return fmt.Errorf("rpc: service %s already registered", svc.name)
	}
	r.services[svc.name] = svc
	return nil
}

// Dispatch decodes a call frame body and invokes the named function.
func (r *Router) Dispatch(ctx context.Context, body []byte) error {
	m, err := message.Unmarshal(protocol.MsgTypeCall, body)
	if err != nil {
		return err
	}
	return r.Invoke(ctx, m.(*message.Call))
}

// Invoke runs c against the registered functions.
func (r *Router) Invoke(ctx context.Context, c *message.Call) error {
	r.mu.RLock()
	fn, ok := r.funcs[c.Function]
	r.mu.RUnlock()
	if ok {
		return fn(ctx, c.Args)
	}

	r.mu.RLock()
	fallback := r.fallback
	var svc *service
	dot := strings.LastIndex(c.Function, ".")
	if dot > 0 {
		svc = r.services[c.Function[:dot]]
	}
	r.mu.RUnlock()
	if svc != nil {
		if method, ok := svc.method[c.Function[dot+1:]]; ok {
			return svc.call(ctx, method, c.Args)
		}
	}
	if fallback != nil {
		return fallback(ctx, c.Function, c.Args)
	}
	return fmt.Errorf("%w: %s", ErrUnknownFunction, c.Function)
}
