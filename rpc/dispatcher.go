// Package rpc sends fire-and-forget remote calls to clients and routes the
// calls a client receives to local functions.
//
//	Dispatcher.Call(targets, "hud.flash", 3, "red")
//	  → args through codec.FromGo
//	  → envelope {fn = "hud.flash", args = {3, "red", n = 2}}
//	  → one MsgTypeCall frame per target peer
//
// An argument that cannot be encoded fails the call before any byte is sent.
package rpc

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"game-rpc/codec"
	"game-rpc/message"
	"game-rpc/protocol"
	"game-rpc/transport"
)

// chunkOverhead bounds the encoded id, index, total and string header of a
// CallChunk body.
const chunkOverhead = 64

// Dispatcher sends calls through a transport.Sender.
type Dispatcher struct {
	sender  transport.Sender
	logger  *zap.Logger
	chunkID atomic.Uint32
}

// NewDispatcher returns a dispatcher writing to sender. logger may be nil.
func NewDispatcher(sender transport.Sender, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{sender: sender, logger: logger}
}

// Call invokes fn on every peer selected by targets. Arguments are converted
// with codec.FromGo; nil arguments keep their position. Delivery errors,
// including protocol.ErrMessageTooLarge, are returned.
func (d *Dispatcher) Call(targets transport.Targets, fn string, args ...any) error {
	body, err := d.encode(targets, fn, args)
	if err != nil {
		return err
	}
	return d.sender.Send(targets, protocol.MsgTypeCall, body)
}

// CallLarge is Call for envelopes that may exceed one frame. A body too large
// for a frame is split into CallChunk frames the receiver reassembles.
func (d *Dispatcher) CallLarge(targets transport.Targets, fn string, args ...any) error {
	body, err := d.encode(targets, fn, args)
	if err != nil {
		return err
	}
	if len(body) <= protocol.MaxBodySize {
		return d.sender.Send(targets, protocol.MsgTypeCall, body)
	}

	size := protocol.MaxBodySize - chunkOverhead
	total := (len(body) + size - 1) / size
	if total > MaxChunks {
		return fmt.Errorf("%w: call %s needs %d chunks (max %d)", protocol.ErrMessageTooLarge, fn, total, MaxChunks)
	}
	id := int(d.chunkID.Add(1) & maxChunkID)
	frames := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		end := min((i+1)*size, len(body))
		frame, err := message.Marshal(&message.CallChunk{
			ID:    id,
			Index: i,
			Total: total,
			Data:  body[i*size : end],
		})
		if err != nil {
			return err
		}
		frames = append(frames, frame)
	}
	d.logger.Debug("sending chunked call",
		zap.String("fn", fn), zap.Int("bytes", len(body)), zap.Int("chunks", total))
	for _, frame := range frames {
		if err := d.sender.Send(targets, protocol.MsgTypeCallChunk, frame); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) encode(targets transport.Targets, fn string, args []any) ([]byte, error) {
	if err := targets.Validate(); err != nil {
		return nil, err
	}
	if fn == "" {
		return nil, fmt.Errorf("%w: empty function name", transport.ErrInvalidArgument)
	}
	if len(args) > message.MaxArgs {
		return nil, fmt.Errorf("%w: %d arguments (max %d)", transport.ErrInvalidArgument, len(args), message.MaxArgs)
	}
	vals := make([]codec.Value, len(args))
	for i, a := range args {
		v, err := codec.FromGo(a)
		if err != nil {
			return nil, fmt.Errorf("rpc: %s argument %d: %w", fn, i+1, err)
		}
		vals[i] = v
	}
	return message.Marshal(&message.Call{Function: fn, Args: vals})
}
