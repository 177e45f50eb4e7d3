// Package message defines the typed bodies exchanged between server and clients.
//
// Every body is a sequence of codec values. A remote call is a single table
// envelope {fn = "name", args = {...}}; the replicated variable messages are
// flat sequences of strings.
package message

import (
	"errors"
	"fmt"

	"game-rpc/codec"
	"game-rpc/protocol"
)

// ErrMalformed is returned when a body decodes but has the wrong shape.
var ErrMalformed = errors.New("message: malformed body")

// Message is one typed frame body.
type Message interface {
	Type() protocol.MsgType
	MarshalTo(s codec.Sink) error
	UnmarshalFrom(s codec.Source) error
}

// Marshal encodes m. Encoding goes through a queued codec.Queue, so on error
// no partial body is produced.
func Marshal(m Message) ([]byte, error) {
	w := codec.NewWriter()
	q := codec.NewQueue(w, true)
	if err := q.Begin(); err != nil {
		return nil, err
	}
	if err := m.MarshalTo(q); err != nil {
		q.Discard()
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	if err := q.End(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// New returns an empty message for t.
func New(t protocol.MsgType) (Message, error) {
	switch t {
	case protocol.MsgTypeCall:
		return &Call{}, nil
	case protocol.MsgTypeCallChunk:
		return &CallChunk{}, nil
	case protocol.MsgTypeDefineVar:
		return &DefineVar{}, nil
	case protocol.MsgTypeRequestChange:
		return &RequestChange{}, nil
	case protocol.MsgTypeUpdate:
		return &Update{}, nil
	case protocol.MsgTypeNotice:
		return &Notice{}, nil
	case protocol.MsgTypeReady:
		return &Ready{}, nil
	}
	return nil, fmt.Errorf("%w: no body for %s", ErrMalformed, t)
}

// Unmarshal decodes a body of type t. Trailing bytes are rejected.
func Unmarshal(t protocol.MsgType, body []byte) (Message, error) {
	m, err := New(t)
	if err != nil {
		return nil, err
	}
	r := codec.NewReader(body)
	if err := m.UnmarshalFrom(r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	if !r.EOF() {
		return nil, fmt.Errorf("decode %s: %w: %d trailing bytes", t, ErrMalformed, r.Remaining())
	}
	return m, nil
}

func writeStrings(s codec.Sink, vs ...string) error {
	for _, v := range vs {
		if err := codec.EncodeValue(s, codec.String(v)); err != nil {
			return err
		}
	}
	return nil
}

func readStrings(s codec.Source, dst ...*string) error {
	for _, d := range dst {
		v, err := codec.DecodeValue(s)
		if err != nil {
			return err
		}
		str, ok := v.(codec.String)
		if !ok {
			return fmt.Errorf("%w: want string, got %s", ErrMalformed, codec.KindName(v))
		}
		*d = string(str)
	}
	return nil
}

func readInt(s codec.Source) (int, error) {
	v, err := codec.DecodeValue(s)
	if err != nil {
		return 0, err
	}
	n, ok := v.(codec.Number)
	if !ok || n < 0 || float64(n) != float64(int64(n)) {
		return 0, fmt.Errorf("%w: want non-negative integer, got %s", ErrMalformed, codec.KindName(v))
	}
	return int(n), nil
}
