package transport

import (
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-rpc/protocol"
)

// pipePeer returns a hub peer and a channel receiving the frames written to it.
func pipePeer(t *testing.T, id PeerID) (*Peer, <-chan *protocol.Header) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})
	ch := make(chan *protocol.Header, 16)
	go func() {
		for {
			h, _, err := protocol.Decode(remote)
			if err != nil {
				return
			}
			ch <- h
		}
	}()
	return NewPeer(id, local), ch
}

func expectFrame(t *testing.T, ch <-chan *protocol.Header, want protocol.MsgType) {
	t.Helper()
	select {
	case h := <-ch:
		assert.Equal(t, want, h.MsgType)
	case <-time.After(time.Second):
		t.Fatalf("no %s frame", want)
	}
}

func expectNone(t *testing.T, ch <-chan *protocol.Header) {
	t.Helper()
	select {
	case h := <-ch:
		t.Fatalf("unexpected %s frame", h.MsgType)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubSendTargets(t *testing.T) {
	hub := NewHub(nil, nil)
	a, aCh := pipePeer(t, "a")
	b, bCh := pipePeer(t, "b")
	c, cCh := pipePeer(t, "c")
	hub.Add(a)
	hub.Add(b)
	hub.Add(c)

	require.NoError(t, hub.Send(All(), protocol.MsgTypeNotice, []byte("x")))
	expectFrame(t, aCh, protocol.MsgTypeNotice)
	expectFrame(t, bCh, protocol.MsgTypeNotice)
	expectFrame(t, cCh, protocol.MsgTypeNotice)

	require.NoError(t, hub.Send(One("b"), protocol.MsgTypeUpdate, nil))
	expectFrame(t, bCh, protocol.MsgTypeUpdate)
	expectNone(t, aCh)
	expectNone(t, cCh)

	require.NoError(t, hub.Send(Set("a", "c", "a", "gone"), protocol.MsgTypeCall, nil))
	expectFrame(t, aCh, protocol.MsgTypeCall)
	expectFrame(t, cCh, protocol.MsgTypeCall)
	expectNone(t, aCh)
	expectNone(t, bCh)
}

func TestHubRejectsBeforeSending(t *testing.T) {
	hub := NewHub(nil, nil)
	a, aCh := pipePeer(t, "a")
	hub.Add(a)

	err := hub.Send(Set(), protocol.MsgTypeCall, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = hub.Send(One(""), protocol.MsgTypeCall, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = hub.Send(All(), protocol.MsgTypeCall, make([]byte, protocol.MaxBodySize+1))
	assert.ErrorIs(t, err, protocol.ErrMessageTooLarge)

	err = hub.Send(One("missing"), protocol.MsgTypeCall, nil)
	assert.ErrorIs(t, err, ErrUnknownPeer)

	expectNone(t, aCh)
}

func TestHubRemove(t *testing.T) {
	hub := NewHub(nil, nil)
	a, _ := pipePeer(t, "a")
	b, _ := pipePeer(t, "b")
	hub.Add(b)
	hub.Add(a)

	peers := hub.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, PeerID("a"), peers[0].ID())

	hub.Remove("a")
	_, ok := hub.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, hub.Len())
}

func TestHubMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")
	hub := NewHub(nil, m)
	a, aCh := pipePeer(t, "a")
	hub.Add(a)

	require.NoError(t, hub.Send(All(), protocol.MsgTypeNotice, []byte("hello")))
	expectFrame(t, aCh, protocol.MsgTypeNotice)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesSent.WithLabelValues("Notice")))
	assert.Equal(t, float64(5+protocol.HeaderSize), testutil.ToFloat64(m.bytesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.peers))
}

func TestTargetsAndLevels(t *testing.T) {
	assert.NoError(t, Targets{}.Validate())
	assert.True(t, Targets{}.IsAll())
	assert.Equal(t, "{a,b}", Set("a", "b").String())

	l, err := ParseLevel("Admin")
	require.NoError(t, err)
	assert.Equal(t, LevelAdmin, l)
	_, err = ParseLevel("root")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	p := NewPeer("p", nil)
	assert.False(t, p.HasAccess(LevelAdmin))
	p.SetLevel(LevelSuperAdmin)
	assert.True(t, p.HasAccess(LevelAdmin))
	assert.True(t, p.MarkReady())
	assert.False(t, p.MarkReady())
}
