package rpc

import (
	"fmt"

	"game-rpc/message"
)

const (
	// MaxChunks caps the chunks of one call.
	MaxChunks = 256
	// MaxPending caps the calls being reassembled at once.
	MaxPending = 8

	maxChunkID = 1<<31 - 1
)

type partial struct {
	parts [][]byte
	got   int
	size  int
}

// Reassembler joins CallChunk frames back into call bodies. Chunks of one
// call arrive in order on one connection but calls may interleave. It is not
// safe for concurrent use.
type Reassembler struct {
	pending map[int]*partial
	order   []int
}

func NewReassembler() *Reassembler {
	return &Reassembler{pending: make(map[int]*partial)}
}

// Add records c and returns the full call body once every chunk arrived.
// When more than MaxPending calls are open the oldest is dropped.
func (r *Reassembler) Add(c *message.CallChunk) ([]byte, bool, error) {
	if c.Total <= 0 || c.Total > MaxChunks || c.Index < 0 || c.Index >= c.Total {
		return nil, false, fmt.Errorf("%w: chunk %d of %d", message.ErrMalformed, c.Index, c.Total)
	}
	p, ok := r.pending[c.ID]
	if !ok {
		if len(r.order) >= MaxPending {
			r.drop(r.order[0])
		}
		p = &partial{parts: make([][]byte, c.Total)}
		r.pending[c.ID] = p
		r.order = append(r.order, c.ID)
	}
	if len(p.parts) != c.Total {
		r.drop(c.ID)
		return nil, false, fmt.Errorf("%w: call %d changed chunk count", message.ErrMalformed, c.ID)
	}
	if p.parts[c.Index] != nil {
		r.drop(c.ID)
		return nil, false, fmt.Errorf("%w: call %d repeated chunk %d", message.ErrMalformed, c.ID, c.Index)
	}
	p.parts[c.Index] = append([]byte{}, c.Data...)
	p.got++
	p.size += len(c.Data)
	if p.got < c.Total {
		return nil, false, nil
	}

	r.drop(c.ID)
	body := make([]byte, 0, p.size)
	for _, part := range p.parts {
		body = append(body, part...)
	}
	return body, true, nil
}

// Pending returns the number of incomplete calls.
func (r *Reassembler) Pending() int {
	return len(r.pending)
}

func (r *Reassembler) drop(id int) {
	delete(r.pending, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
