package transport

import (
	"io"
	"net"
	"sync"
	"sync/atomic"

	"game-rpc/protocol"
)

// frameWriter serializes frame writes on one connection.
// Several goroutines may send to the same peer; without the lock a header from
// one frame could be followed by the body of another.
type frameWriter struct {
	w       io.Writer
	sending sync.Mutex
	seq     uint32 // protected by sending
}

func (f *frameWriter) write(t protocol.MsgType, body []byte) error {
	f.sending.Lock()
	defer f.sending.Unlock()

	f.seq++
	header := protocol.Header{
		CodecType: protocol.CodecTypeTagged,
		MsgType:   t,
		Seq:       f.seq,
		BodyLen:   uint32(len(body)),
	}
	return protocol.Encode(f.w, &header, body)
}

// Peer is the server side of one client connection.
type Peer struct {
	id    PeerID
	name  string
	conn  net.Conn
	out   frameWriter
	level atomic.Uint32
	ready atomic.Bool
}

// NewPeer wraps conn. The peer starts at LevelUser and not ready.
func NewPeer(id PeerID, conn net.Conn) *Peer {
	p := &Peer{id: id, conn: conn}
	p.out.w = conn
	return p
}

func (p *Peer) ID() PeerID { return p.id }

// Name returns the display name, defaulting to the id.
func (p *Peer) Name() string {
	if p.name == "" {
		return string(p.id)
	}
	return p.name
}

// SetName sets the display name. Call before the peer is shared.
func (p *Peer) SetName(name string) { p.name = name }

func (p *Peer) Conn() net.Conn { return p.conn }

func (p *Peer) Level() Level { return Level(p.level.Load()) }

func (p *Peer) SetLevel(l Level) { p.level.Store(uint32(l)) }

// HasAccess reports whether the peer's level is at least l.
func (p *Peer) HasAccess(l Level) bool { return p.Level() >= l }

// Ready reports whether the peer has finished loading.
func (p *Peer) Ready() bool { return p.ready.Load() }

// MarkReady flips the peer to ready and reports whether it was not ready before.
func (p *Peer) MarkReady() bool { return p.ready.CompareAndSwap(false, true) }

// Send writes one frame to the peer.
func (p *Peer) Send(t protocol.MsgType, body []byte) error {
	return p.out.write(t, body)
}

func (p *Peer) Close() error { return p.conn.Close() }
