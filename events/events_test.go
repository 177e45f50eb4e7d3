package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-rpc/codec"
	"game-rpc/transport"
)

func TestVarChangedDelivery(t *testing.T) {
	bus := New()
	var got []VarChanged
	cancel, err := OnVarChanged(bus, func(e VarChanged) { got = append(got, e) })
	require.NoError(t, err)

	bus.Publish(TopicVarChanged, VarChanged{
		ServerName: "sv_test",
		ClientName: "cl_test",
		Peer:       transport.ServerPeer,
		Old:        codec.Nil{},
		New:        codec.String("5"),
	})
	cancel()
	bus.Publish(TopicVarChanged, VarChanged{ServerName: "ignored"})

	require.Len(t, got, 1)
	assert.Equal(t, "sv_test", got[0].ServerName)
	assert.Equal(t, codec.String("5"), got[0].New)
}

func TestPeerReadyDelivery(t *testing.T) {
	bus := New()
	p := transport.NewPeer("p1", nil)
	var got *transport.Peer
	_, err := OnPeerReady(bus, func(e PeerReady) { got = e.Peer })
	require.NoError(t, err)

	bus.Publish(TopicPeerReady, PeerReady{Peer: p})
	assert.Same(t, p, got)
}

func TestSubscribeRejectsNonFunc(t *testing.T) {
	bus := New()
	assert.Error(t, bus.Subscribe(TopicVarChanged, 42))
}
