package transport

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"game-rpc/protocol"
)

// ErrUnknownPeer is returned when a single target is not connected.
var ErrUnknownPeer = errors.New("transport: unknown peer")

// Sender delivers one frame body to a set of peers.
type Sender interface {
	Send(targets Targets, t protocol.MsgType, body []byte) error
}

// Hub tracks connected peers and fans frames out to them.
// It is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	peers   map[PeerID]*Peer
	logger  *zap.Logger
	metrics *Metrics
}

// NewHub returns an empty hub. logger and metrics may be nil.
func NewHub(logger *zap.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		peers:   make(map[PeerID]*Peer),
		logger:  logger,
		metrics: metrics,
	}
}

// Add registers p, replacing any peer with the same id.
func (h *Hub) Add(p *Peer) {
	h.mu.Lock()
	h.peers[p.ID()] = p
	n := len(h.peers)
	h.mu.Unlock()
	h.metrics.setPeers(n)
}

// Remove drops the peer with id.
func (h *Hub) Remove(id PeerID) {
	h.mu.Lock()
	delete(h.peers, id)
	n := len(h.peers)
	h.mu.Unlock()
	h.metrics.setPeers(n)
}

// Get returns the peer with id.
func (h *Hub) Get(id PeerID) (*Peer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.peers[id]
	return p, ok
}

// Peers returns the connected peers ordered by id.
func (h *Hub) Peers() []*Peer {
	h.mu.RLock()
	out := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of connected peers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Send writes body to every peer selected by targets.
//
// Targets are validated and the body size is checked before the first write,
// so a rejected message reaches nobody. Peers in a set that are no longer
// connected are skipped; a missing single target is ErrUnknownPeer. Write
// failures on individual peers are joined into the returned error.
func (h *Hub) Send(targets Targets, t protocol.MsgType, body []byte) error {
	if err := targets.Validate(); err != nil {
		return err
	}
	if len(body) > protocol.MaxBodySize {
		return fmt.Errorf("%w: %s body is %d bytes (max %d)", protocol.ErrMessageTooLarge, t, len(body), protocol.MaxBodySize)
	}

	var dst []*Peer
	switch {
	case targets.IsAll():
		dst = h.Peers()
	default:
		seen := make(map[PeerID]bool)
		for _, id := range targets.IDs() {
			if seen[id] {
				continue
			}
			seen[id] = true
			p, ok := h.Get(id)
			if !ok {
				if targets.kind == targetOne {
					return fmt.Errorf("%w: %s", ErrUnknownPeer, id)
				}
				h.logger.Debug("skipping disconnected peer", zap.String("peer", string(id)))
				continue
			}
			dst = append(dst, p)
		}
	}

	var errs []error
	for _, p := range dst {
		if err := p.Send(t, body); err != nil {
			h.logger.Warn("send failed",
				zap.String("peer", string(p.ID())),
				zap.Stringer("type", t),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("peer %s: %w", p.ID(), err))
			continue
		}
		h.metrics.sent(t, len(body)+protocol.HeaderSize)
	}
	return errors.Join(errs...)
}
