// Package registry keeps server variables mirrored on clients.
//
// Each entry pairs a server variable with the name clients know it by. The
// registry announces entries to peers, answers client change requests subject
// to an access level, and broadcasts every authoritative change.
//
//	client ──RequestChange──→ OnClientRequestChange ──Var.Set(OriginClient)──┐
//	console ─────────────────→ Set ───────────────────Var.Set(OriginExternal)─┤
//	                                                                          ↓
//	                          onVarChanged ──Update──→ all peers, VarChanged event
//
// All methods must be called from one goroutine (the server's dispatch loop).
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"game-rpc/codec"
	"game-rpc/convar"
	"game-rpc/events"
	"game-rpc/message"
	"game-rpc/transport"
)

var (
	// ErrNameCollision is returned when the server and client names are equal.
	ErrNameCollision = errors.New("registry: server and client names collide")
	// ErrDuplicate is returned when the server name is already registered.
	ErrDuplicate = errors.New("registry: variable already registered")
	// ErrUnknownVar is returned by Set for a name that was never registered.
	ErrUnknownVar = errors.New("registry: unknown variable")
)

// Options describe one replicated variable.
type Options struct {
	ServerName string
	ClientName string
	Default    string
	Persistent bool
	Notify     bool
	Access     transport.Level
}

// Entry is a registered variable.
type Entry struct {
	ServerName string
	ClientName string
	Default    string
	Access     transport.Level
	Var        *convar.Var
}

// Requester is the peer behind a change request.
type Requester interface {
	ID() transport.PeerID
	HasAccess(transport.Level) bool
}

// Registry is the table of replicated variables.
type Registry struct {
	sender  transport.Sender
	vars    *convar.Table
	bus     events.Bus
	logger  *zap.Logger
	entries map[string]*Entry
	order   []*Entry
}

// New returns an empty registry. Messages go out through sender, variables
// are created in vars and change events are published on bus.
func New(sender transport.Sender, vars *convar.Table, bus events.Bus, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sender:  sender,
		vars:    vars,
		bus:     bus,
		logger:  logger,
		entries: make(map[string]*Entry),
	}
}

// Register creates the server variable described by opts and announces it to
// every connected peer. On error nothing is created.
func (r *Registry) Register(opts Options) (*Entry, error) {
	if opts.ServerName == "" || opts.ClientName == "" {
		return nil, fmt.Errorf("%w: empty variable name", transport.ErrInvalidArgument)
	}
	if strings.EqualFold(opts.ServerName, opts.ClientName) {
		return nil, fmt.Errorf("%w: %q", ErrNameCollision, opts.ServerName)
	}
	key := strings.ToLower(opts.ServerName)
	if _, ok := r.entries[key]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicate, opts.ServerName)
	}

	flags := convar.FlagReplicated
	if opts.Persistent {
		flags |= convar.FlagArchive
	}
	if opts.Notify {
		flags |= convar.FlagNotify
	}
	v := r.vars.Create(opts.ServerName, opts.Default, flags)
	v.OnChange(r.onVarChanged)

	e := &Entry{
		ServerName: opts.ServerName,
		ClientName: opts.ClientName,
		Default:    opts.Default,
		Access:     opts.Access,
		Var:        v,
	}
	r.entries[key] = e
	r.order = append(r.order, e)

	r.send(transport.All(), e.define())
	r.publish(e, transport.ServerPeer, codec.Nil{}, codec.String(v.String()))
	r.logger.Info("replicated variable registered",
		zap.String("server", e.ServerName),
		zap.String("client", e.ClientName),
		zap.Stringer("access", e.Access),
		zap.Stringer("flags", v.Flags()))
	return e, nil
}

// Lookup finds an entry by server name, ignoring case.
func (r *Registry) Lookup(serverName string) (*Entry, bool) {
	e, ok := r.entries[strings.ToLower(serverName)]
	return e, ok
}

// Entries returns the entries in registration order.
func (r *Registry) Entries() []*Entry {
	return append([]*Entry(nil), r.order...)
}

// OnPeerReady sends every definition to id only.
func (r *Registry) OnPeerReady(id transport.PeerID) {
	for _, e := range r.order {
		r.send(transport.One(id), e.define())
	}
}

// OnClientRequestChange applies a client's request to set serverName.
// Unknown names and unchanged values are dropped. A peer below the entry's
// access level gets the current value back and a notice; nothing changes.
func (r *Registry) OnClientRequestChange(p Requester, serverName, value string) {
	e, ok := r.Lookup(serverName)
	if !ok {
		r.logger.Debug("change request for unknown variable",
			zap.String("peer", string(p.ID())), zap.String("name", serverName))
		return
	}
	old := e.Var.String()
	if value == old {
		return
	}
	if !p.HasAccess(e.Access) {
		to := transport.One(p.ID())
		r.send(to, &message.Update{ClientName: e.ClientName, Old: old, New: old})
		r.send(to, &message.Notice{
			Text: fmt.Sprintf("You need %s access to change %s.", e.Access, e.ClientName),
		})
		r.logger.Info("change request denied",
			zap.String("peer", string(p.ID())), zap.String("name", e.ServerName))
		return
	}
	e.Var.Set(value, convar.OriginClient)
	r.publish(e, p.ID(), codec.String(old), codec.String(value))
}

// Set changes a registered variable from the server side.
func (r *Registry) Set(serverName, value string) error {
	e, ok := r.Lookup(serverName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVar, serverName)
	}
	e.Var.Set(value, convar.OriginExternal)
	return nil
}

// Watcher reports values changed in the settings store by other writers.
type Watcher interface {
	Watch(ctx context.Context) <-chan convar.StoredValue
	// Current reports whether sv is newer than the last value this process
	// saved for the same variable.
	Current(sv convar.StoredValue) bool
}

// WatchStore applies values seen by w until ctx is done or w stops. Each
// value is applied through exec, which must run it on the registry's
// goroutine; a nil exec applies it on the caller's. Values older than the
// registry's own last save are dropped.
func (r *Registry) WatchStore(ctx context.Context, w Watcher, exec func(func())) {
	if exec == nil {
		exec = func(fn func()) { fn() }
	}
	for sv := range w.Watch(ctx) {
		exec(func() {
			e, ok := r.Lookup(sv.Name)
			if !ok || !e.Var.Has(convar.FlagArchive) || !w.Current(sv) {
				return
			}
			e.Var.Set(sv.Value, convar.OriginStore)
		})
	}
}

// onVarChanged runs for every change of a registered variable.
func (r *Registry) onVarChanged(v *convar.Var, old, value string, origin convar.Origin) {
	e, ok := r.Lookup(v.Name())
	if !ok {
		return
	}
	r.send(transport.All(), &message.Update{ClientName: e.ClientName, Old: old, New: value})
	if origin == convar.OriginClient {
		// OnClientRequestChange publishes with the requesting peer
		return
	}
	r.publish(e, transport.ServerPeer, codec.String(old), codec.String(value))
}

func (r *Registry) publish(e *Entry, peer transport.PeerID, old, value codec.Value) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.TopicVarChanged, events.VarChanged{
		ServerName: e.ServerName,
		ClientName: e.ClientName,
		Peer:       peer,
		Old:        old,
		New:        value,
	})
}

func (r *Registry) send(to transport.Targets, m message.Message) {
	body, err := message.Marshal(m)
	if err != nil {
		r.logger.Error("encode message", zap.Stringer("type", m.Type()), zap.Error(err))
		return
	}
	if err := r.sender.Send(to, m.Type(), body); err != nil {
		r.logger.Warn("send message",
			zap.Stringer("type", m.Type()), zap.Stringer("to", to), zap.Error(err))
	}
}

func (e *Entry) define() *message.DefineVar {
	return &message.DefineVar{
		ServerName: e.ServerName,
		ClientName: e.ClientName,
		Default:    e.Default,
		Current:    e.Var.String(),
	}
}
