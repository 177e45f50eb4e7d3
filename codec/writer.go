package codec

import (
	"encoding/binary"
	"math"
)

// Sink accepts the primitive writes produced by EncodeValue.
// Writer appends them to a byte buffer; Queue records them for later replay.
type Sink interface {
	WriteTag(t Tag)
	WriteBool(b bool)
	WriteInt8(v int8)
	WriteInt16(v int16)
	WriteInt32(v int32)
	WriteFloat64(v float64)
	WriteString(s string)
	WriteVector(v Vector)
	WriteAngle(a Angle)
	WriteEntity(e Entity)
}

// Writer is a binary encoder that appends to an internal buffer.
// Multi-byte integers are big-endian; strings are uvarint length-prefixed.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with a small initial capacity.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 128)}
}

// Bytes returns the encoded bytes. The slice is valid until the next write or Reset.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reset empties the writer, keeping its buffer.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

func (w *Writer) WriteTag(t Tag) {
	w.buf = append(w.buf, byte(t))
}

func (w *Writer) WriteBool(b bool) {
	if b {
		w.buf = append(w.buf, 0x01)
	} else {
		w.buf = append(w.buf, 0x00)
	}
}

func (w *Writer) WriteInt8(v int8) {
	w.buf = append(w.buf, byte(v))
}

func (w *Writer) WriteInt16(v int16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

func (w *Writer) WriteInt32(v int32) {
	w.writeUint32(uint32(v))
}

func (w *Writer) WriteFloat64(v float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *Writer) WriteString(s string) {
	w.writeUvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteVector(v Vector) {
	w.writeFloat32(v.X)
	w.writeFloat32(v.Y)
	w.writeFloat32(v.Z)
}

func (w *Writer) WriteAngle(a Angle) {
	w.writeFloat32(a.P)
	w.writeFloat32(a.Y)
	w.writeFloat32(a.R)
}

func (w *Writer) WriteEntity(e Entity) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(e))
}

func (w *Writer) writeUint32(u uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, u)
}

func (w *Writer) writeFloat32(f float32) {
	w.writeUint32(math.Float32bits(f))
}

func (w *Writer) writeUvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}
