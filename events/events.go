// Package events carries in-process notifications between the server, the
// variable registry and application code.
//
// Handlers run synchronously on the publishing goroutine while the bus holds
// its lock, so a handler must not publish, subscribe or unsubscribe.
package events

import (
	evbus "github.com/asaskevich/EventBus"

	"game-rpc/codec"
	"game-rpc/transport"
)

// Topics.
const (
	// TopicVarChanged carries a VarChanged.
	TopicVarChanged = "registry:var_changed"
	// TopicPeerReady carries a PeerReady.
	TopicPeerReady = "server:peer_ready"
)

// Bus is the subset of the event bus the module uses.
type Bus interface {
	Subscribe(topic string, fn interface{}) error
	Unsubscribe(topic string, handler interface{}) error
	Publish(topic string, args ...interface{})
}

// New returns an empty bus.
func New() Bus {
	return evbus.New()
}

// VarChanged reports a replicated variable taking a new value. Peer is
// transport.ServerPeer when the change did not come from a client. Old is
// codec.Nil at registration.
type VarChanged struct {
	ServerName string
	ClientName string
	Peer       transport.PeerID
	Old        codec.Value
	New        codec.Value
}

// PeerReady reports a client that finished loading.
type PeerReady struct {
	Peer *transport.Peer
}

// OnVarChanged subscribes fn to TopicVarChanged and returns a function
// removing the subscription.
func OnVarChanged(bus Bus, fn func(VarChanged)) (func(), error) {
	if err := bus.Subscribe(TopicVarChanged, fn); err != nil {
		return nil, err
	}
	return func() { _ = bus.Unsubscribe(TopicVarChanged, fn) }, nil
}

// OnPeerReady subscribes fn to TopicPeerReady and returns a function removing
// the subscription.
func OnPeerReady(bus Bus, fn func(PeerReady)) (func(), error) {
	if err := bus.Subscribe(TopicPeerReady, fn); err != nil {
		return nil, err
	}
	return func() { _ = bus.Unsubscribe(TopicPeerReady, fn) }, nil
}
