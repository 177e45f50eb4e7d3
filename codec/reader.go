package codec

import (
	"encoding/binary"
	"errors"
	"math"
)

// Decoding limits guard against hostile length prefixes and nesting.
const (
	// MaxStringLen caps a single decoded string.
	MaxStringLen = 1 << 20

	// MaxDepth caps table nesting on encode and decode.
	MaxDepth = 64
)

var (
	// ErrUnsupportedType is returned when a value cannot be classified.
	ErrUnsupportedType = errors.New("codec: unsupported type")

	// ErrTruncatedMessage is returned when the stream ends inside a value.
	ErrTruncatedMessage = errors.New("codec: truncated message")

	ErrUnknownTag         = errors.New("codec: unknown tag")
	ErrInvalidKey         = errors.New("codec: invalid table key")
	ErrMaxDepthExceeded   = errors.New("codec: max nesting depth exceeded")
	ErrAllocationTooLarge = errors.New("codec: allocation size exceeds limit")
	ErrVarintOverflow     = errors.New("codec: varint overflow")
)

// Source yields the primitives consumed by DecodeValue.
type Source interface {
	ReadTag() (Tag, error)
	ReadBool() (bool, error)
	ReadInt8() (int8, error)
	ReadInt16() (int16, error)
	ReadInt32() (int32, error)
	ReadFloat64() (float64, error)
	ReadString() (string, error)
	ReadVector() (Vector, error)
	ReadAngle() (Angle, error)
	ReadEntity() (Entity, error)
}

// Reader decodes primitives from a byte slice written by Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a reader over buf. buf is not copied.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// EOF reports whether every byte has been consumed.
func (r *Reader) EOF() bool {
	return r.pos >= len(r.buf)
}

func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, ErrTruncatedMessage
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadTag() (Tag, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return Tag(b[0]), nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.next(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	u, err := r.readUint32()
	return int32(u), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.readUvarint()
	if err != nil {
		return "", err
	}
	if n > MaxStringLen {
		return "", ErrAllocationTooLarge
	}
	if n > uint64(r.Remaining()) {
		return "", ErrTruncatedMessage
	}
	b, _ := r.next(int(n))
	return string(b), nil
}

func (r *Reader) ReadVector() (Vector, error) {
	var v Vector
	var err error
	if v.X, err = r.readFloat32(); err != nil {
		return Vector{}, err
	}
	if v.Y, err = r.readFloat32(); err != nil {
		return Vector{}, err
	}
	if v.Z, err = r.readFloat32(); err != nil {
		return Vector{}, err
	}
	return v, nil
}

func (r *Reader) ReadAngle() (Angle, error) {
	v, err := r.ReadVector()
	return Angle{P: v.X, Y: v.Y, R: v.Z}, err
}

func (r *Reader) ReadEntity() (Entity, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return Entity(binary.BigEndian.Uint16(b)), nil
}

func (r *Reader) readUint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) readFloat32() (float32, error) {
	u, err := r.readUint32()
	return math.Float32frombits(u), err
}

func (r *Reader) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	switch {
	case n == 0:
		return 0, ErrTruncatedMessage
	case n < 0:
		return 0, ErrVarintOverflow
	}
	r.pos += n
	return v, nil
}
