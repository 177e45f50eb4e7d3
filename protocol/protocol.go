// Package protocol implements the binary frame that carries every game-rpc message.
//
// Each message is a fixed 14-byte header followed by a body of tagged values
// (see package codec). The receiver reads the header first, checks it, then
// reads exactly bodyLen bytes.
//
// Frame format:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...    │
//	│ grp  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	MagicNumber byte = 0x67 // 'g'
	MagicByte2  byte = 0x72 // 'r'
	MagicByte3  byte = 0x70 // 'p'
	Version     byte = 0x01
	HeaderSize  int  = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 4 (seq) + 4 (bodyLen)

	// MaxBodySize is the largest body a single frame may carry.
	// Larger payloads must go through the chunked call path.
	MaxBodySize = 64 * 1024
)

// CodecTypeTagged is the only body encoding: codec's tagged value stream.
const CodecTypeTagged byte = 0x01

// ErrMessageTooLarge is returned when a body exceeds MaxBodySize.
var ErrMessageTooLarge = errors.New("protocol: message too large")

// MsgType identifies what the body of a frame holds.
type MsgType byte

const (
	MsgTypeHeartbeat     MsgType = 0 // keepalive, no body
	MsgTypeCall          MsgType = 1 // server -> client remote call envelope
	MsgTypeCallChunk     MsgType = 2 // server -> client piece of an oversized call
	MsgTypeDefineVar     MsgType = 3 // server -> client replicated variable definition
	MsgTypeRequestChange MsgType = 4 // client -> server change request
	MsgTypeUpdate        MsgType = 5 // server -> client authoritative update / revert
	MsgTypeNotice        MsgType = 6 // server -> client user visible text
	MsgTypeReady         MsgType = 7 // client -> server, client finished loading

	msgTypeMax = MsgTypeReady
)

// String returns the name of the message type.
func (t MsgType) String() string {
	switch t {
	case MsgTypeHeartbeat:
		return "Heartbeat"
	case MsgTypeCall:
		return "Call"
	case MsgTypeCallChunk:
		return "CallChunk"
	case MsgTypeDefineVar:
		return "DefineVar"
	case MsgTypeRequestChange:
		return "RequestChange"
	case MsgTypeUpdate:
		return "Update"
	case MsgTypeNotice:
		return "Notice"
	case MsgTypeReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

// Header is the fixed 14-byte frame header.
type Header struct {
	CodecType byte
	MsgType   MsgType
	Seq       uint32 // per-connection sequence, increases by one per frame
	BodyLen   uint32
}

// Encode writes a complete frame (header + body) to w.
// The caller must serialize writes to a shared writer, otherwise frames interleave.
func Encode(w io.Writer, h *Header, body []byte) error {
	if len(body) > MaxBodySize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(body), MaxBodySize)
	}
	buf := make([]byte, HeaderSize, HeaderSize+len(body))

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(body)))

	// one Write per frame so a datagram-like conn never sees a split frame
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// Decode reads a complete frame (header + body) from r.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}
	if headerBuf[4] != CodecTypeTagged {
		return nil, nil, fmt.Errorf("unsupported codec type: %d", headerBuf[4])
	}
	msgType := MsgType(headerBuf[5])
	if msgType > msgTypeMax {
		return nil, nil, fmt.Errorf("unsupported message type: %d", headerBuf[5])
	}

	seq := binary.BigEndian.Uint32(headerBuf[6:10])
	bodyLen := binary.BigEndian.Uint32(headerBuf[10:14])
	if bodyLen > MaxBodySize {
		return nil, nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, bodyLen, MaxBodySize)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		MsgType:   msgType,
		Seq:       seq,
		BodyLen:   bodyLen,
	}, body, nil
}
