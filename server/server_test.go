package server

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-rpc/codec"
	"game-rpc/events"
	"game-rpc/message"
	"game-rpc/protocol"
	"game-rpc/registry"
	"game-rpc/transport"
)

// rawPeer speaks the wire protocol directly.
type rawPeer struct {
	t    *testing.T
	conn net.Conn
	seq  uint32
}

func (r *rawPeer) sendBody(mt protocol.MsgType, body []byte) {
	r.t.Helper()
	r.seq++
	h := protocol.Header{CodecType: protocol.CodecTypeTagged, MsgType: mt, Seq: r.seq, BodyLen: uint32(len(body))}
	require.NoError(r.t, protocol.Encode(r.conn, &h, body))
}

func (r *rawPeer) send(m message.Message) {
	r.t.Helper()
	body, err := message.Marshal(m)
	require.NoError(r.t, err)
	r.sendBody(m.Type(), body)
}

func (r *rawPeer) recv() message.Message {
	r.t.Helper()
	r.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		h, body, err := protocol.Decode(r.conn)
		require.NoError(r.t, err)
		if h.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}
		m, err := message.Unmarshal(h.MsgType, body)
		require.NoError(r.t, err)
		return m
	}
}

func (r *rawPeer) expectNothing() {
	r.t.Helper()
	r.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := protocol.Decode(r.conn)
	var ne net.Error
	require.ErrorAs(r.t, err, &ne)
	require.True(r.t, ne.Timeout(), "expected no frame, got %v", err)
}

type harness struct {
	srv  *Server
	addr string

	mu      sync.Mutex
	changes []events.VarChanged
}

func startServer(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{}
	if opts.Bus == nil {
		opts.Bus = events.New()
	}
	_, err := events.OnVarChanged(opts.Bus, func(e events.VarChanged) {
		h.mu.Lock()
		h.changes = append(h.changes, e)
		h.mu.Unlock()
	})
	require.NoError(t, err)

	h.srv = NewServer(opts)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	h.addr = l.Addr().String()

	served := make(chan error, 1)
	go func() { served <- h.srv.Serve(l) }()
	t.Cleanup(func() {
		require.NoError(t, h.srv.Shutdown(2*time.Second))
		require.NoError(t, <-served)
	})
	return h
}

func (h *harness) events() []events.VarChanged {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.VarChanged(nil), h.changes...)
}

func (h *harness) resetEvents() {
	h.mu.Lock()
	h.changes = nil
	h.mu.Unlock()
}

// connect dials the server and waits until the hub holds n peers.
func (h *harness) connect(t *testing.T, n int) *rawPeer {
	t.Helper()
	conn, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return h.srv.Hub().Len() == n }, 2*time.Second, 5*time.Millisecond)
	return &rawPeer{t: t, conn: conn}
}

func (h *harness) registerTest(t *testing.T) {
	t.Helper()
	_, err := h.srv.RegisterVar(registry.Options{
		ServerName: "sv_test",
		ClientName: "cl_test",
		Default:    "5",
		Access:     transport.LevelAdmin,
	})
	require.NoError(t, err)
}

func (h *harness) value(t *testing.T, name string) string {
	t.Helper()
	v, err := h.srv.VarValue(name)
	require.NoError(t, err)
	return v
}

func readyPeer(t *testing.T, p *rawPeer) {
	t.Helper()
	p.send(&message.Ready{})
	assert.Equal(t, &message.DefineVar{ServerName: "sv_test", ClientName: "cl_test", Default: "5", Current: "5"}, p.recv())
}

func TestNonAdminChangeIsReverted(t *testing.T) {
	h := startServer(t, Options{})
	h.registerTest(t)
	h.resetEvents()

	p := h.connect(t, 1)
	readyPeer(t, p)

	p.send(&message.RequestChange{ServerName: "sv_test", Value: "10"})
	assert.Equal(t, &message.Update{ClientName: "cl_test", Old: "5", New: "5"}, p.recv())
	notice, ok := p.recv().(*message.Notice)
	require.True(t, ok)
	assert.Contains(t, notice.Text, "cl_test")

	assert.Equal(t, "5", h.value(t, "sv_test"))
	assert.Empty(t, h.events())
}

func TestAdminChangeIsBroadcast(t *testing.T) {
	h := startServer(t, Options{})
	h.registerTest(t)
	h.resetEvents()

	p := h.connect(t, 1)
	a := h.connect(t, 2)
	readyPeer(t, p)
	readyPeer(t, a)
	require.NoError(t, h.srv.SetAccess("peer-2", transport.LevelAdmin))

	a.send(&message.RequestChange{ServerName: "sv_test", Value: "10"})
	want := &message.Update{ClientName: "cl_test", Old: "5", New: "10"}
	assert.Equal(t, want, a.recv())
	assert.Equal(t, want, p.recv())

	assert.Equal(t, "10", h.value(t, "sv_test"))
	changes := h.events()
	require.Len(t, changes, 1)
	assert.Equal(t, events.VarChanged{
		ServerName: "sv_test",
		ClientName: "cl_test",
		Peer:       "peer-2",
		Old:        codec.String("5"),
		New:        codec.String("10"),
	}, changes[0])
}

func TestRegisterBroadcastsToConnectedPeers(t *testing.T) {
	h := startServer(t, Options{})
	p := h.connect(t, 1)

	h.registerTest(t)
	assert.Equal(t, &message.DefineVar{ServerName: "sv_test", ClientName: "cl_test", Default: "5", Current: "5"}, p.recv())

	// only the first Ready replays the definitions
	p.send(&message.Ready{})
	p.recv()
	p.send(&message.Ready{})
	p.expectNothing()
}

func TestLateJoinerGetsCurrentValues(t *testing.T) {
	h := startServer(t, Options{Access: func(*transport.Peer) transport.Level { return transport.LevelSuperAdmin }})
	h.registerTest(t)
	require.NoError(t, h.srv.SetVar("sv_test", "7"))

	early := h.connect(t, 1)
	late := h.connect(t, 2)
	early.send(&message.Ready{})
	early.recv()

	late.expectNothing()
	late.send(&message.Ready{})
	assert.Equal(t, &message.DefineVar{ServerName: "sv_test", ClientName: "cl_test", Default: "5", Current: "7"}, late.recv())
	early.expectNothing()
}

func TestServerSideSetBroadcasts(t *testing.T) {
	h := startServer(t, Options{})
	h.registerTest(t)
	p := h.connect(t, 1)
	readyPeer(t, p)
	h.resetEvents()

	require.NoError(t, h.srv.SetVar("SV_TEST", "6"))
	assert.Equal(t, &message.Update{ClientName: "cl_test", Old: "5", New: "6"}, p.recv())
	changes := h.events()
	require.Len(t, changes, 1)
	assert.Equal(t, transport.ServerPeer, changes[0].Peer)

	assert.ErrorIs(t, h.srv.SetVar("sv_missing", "1"), registry.ErrUnknownVar)
}

func TestCallReachesPeers(t *testing.T) {
	h := startServer(t, Options{})
	p1 := h.connect(t, 1)
	p2 := h.connect(t, 2)

	require.NoError(t, h.srv.Call(transport.One("peer-2"), "hud.flash", 3, "red"))
	call, ok := p2.recv().(*message.Call)
	require.True(t, ok)
	assert.Equal(t, "hud.flash", call.Function)
	assert.Equal(t, []codec.Value{codec.Number(3), codec.String("red")}, call.Args)
	p1.expectNothing()

	require.NoError(t, h.srv.Notify(transport.All(), "hello"))
	assert.Equal(t, &message.Notice{Text: "hello"}, p1.recv())
	assert.Equal(t, &message.Notice{Text: "hello"}, p2.recv())
}

func TestCallWithUnsupportedArgumentSendsNothing(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := startServer(t, Options{Registerer: reg})
	p := h.connect(t, 1)

	err := h.srv.Call(transport.All(), "f", 1, struct{}{})
	assert.ErrorIs(t, err, codec.ErrUnsupportedType)
	p.expectNothing()

	n, err := testutil.GatherAndCount(reg, "gamerpc_transport_frames_sent_total")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMalformedAndUnexpectedMessagesAreDropped(t *testing.T) {
	h := startServer(t, Options{})
	h.registerTest(t)
	p := h.connect(t, 1)

	p.sendBody(protocol.MsgTypeRequestChange, []byte{byte(codec.TagString)})
	p.send(&message.Notice{Text: "clients do not send notices"})

	// the connection still works
	readyPeer(t, p)
}

func TestRateLimitDropsRequests(t *testing.T) {
	h := startServer(t, Options{RateLimit: 0.001, RateBurst: 1})
	h.registerTest(t)
	p := h.connect(t, 1)

	readyPeer(t, p)
	require.NoError(t, h.srv.SetAccess("peer-1", transport.LevelAdmin))
	p.send(&message.RequestChange{ServerName: "sv_test", Value: "10"})
	p.expectNothing()
	assert.Equal(t, "5", h.value(t, "sv_test"))
}

func TestReadTimeoutDropsSilentPeer(t *testing.T) {
	h := startServer(t, Options{ReadTimeout: 50 * time.Millisecond})
	h.connect(t, 1)
	require.Eventually(t, func() bool { return h.srv.Hub().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHeartbeatsKeepPeerAlive(t *testing.T) {
	h := startServer(t, Options{ReadTimeout: 100 * time.Millisecond})
	p := h.connect(t, 1)
	for i := 0; i < 5; i++ {
		p.sendBody(protocol.MsgTypeHeartbeat, nil)
		time.Sleep(40 * time.Millisecond)
	}
	assert.Equal(t, 1, h.srv.Hub().Len())
}

func TestDoAfterShutdown(t *testing.T) {
	srv := NewServer(Options{})
	require.NoError(t, srv.Shutdown(time.Second))
	assert.ErrorIs(t, srv.Do(func() {}), ErrServerClosed)
	_, err := srv.RegisterVar(registry.Options{ServerName: "a", ClientName: "b"})
	assert.ErrorIs(t, err, ErrServerClosed)
	_, err = srv.VarValue("a")
	assert.ErrorIs(t, err, ErrServerClosed)
}

func TestVarValueUnknown(t *testing.T) {
	h := startServer(t, Options{})
	_, err := h.srv.VarValue("sv_missing")
	assert.ErrorIs(t, err, registry.ErrUnknownVar)
}
