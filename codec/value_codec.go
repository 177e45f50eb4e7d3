package codec

import (
	"fmt"
	"math"
)

// EncodeValue writes v to s as a tag followed by its payload.
//
// Numbers use the smallest representation that keeps the value exact:
//
//	non-integral, NaN, Inf      -> Float
//	-127 <= n <= 127            -> Char
//	-32768 < n < 32767          -> Short
//	fits int32                  -> Long
//	otherwise                   -> Float
//
// The char and short bounds are deliberately not the two's-complement limits;
// peers rely on them. Tables nested deeper than MaxDepth, including tables
// that contain themselves, fail with ErrMaxDepthExceeded.
func EncodeValue(s Sink, v Value) error {
	return encodeValue(s, v, 0)
}

func encodeValue(s Sink, v Value, depth int) error {
	switch v := v.(type) {
	case Nil:
		s.WriteTag(TagNil)
	case Bool:
		s.WriteTag(TagBool)
		s.WriteBool(bool(v))
	case Number:
		encodeNumber(s, float64(v))
	case String:
		s.WriteTag(TagString)
		s.WriteString(string(v))
	case Vector:
		s.WriteTag(TagVector)
		s.WriteVector(v)
	case Angle:
		s.WriteTag(TagAngle)
		s.WriteAngle(v)
	case Entity:
		s.WriteTag(TagEntity)
		s.WriteEntity(v)
	case *Table:
		if v == nil {
			s.WriteTag(TagNil)
			return nil
		}
		if depth+1 > MaxDepth {
			return ErrMaxDepthExceeded
		}
		s.WriteTag(TagTableBegin)
		var err error
		v.Range(func(k, val Value) bool {
			if err = encodeValue(s, k, depth+1); err != nil {
				return false
			}
			err = encodeValue(s, val, depth+1)
			return err == nil
		})
		if err != nil {
			return err
		}
		s.WriteTag(TagTableEnd)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	return nil
}

// NumberTag returns the tag EncodeValue selects for n.
func NumberTag(n float64) Tag {
	if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
		return TagFloat
	}
	switch {
	case n >= -127 && n <= 127:
		return TagChar
	case n > -32768 && n < 32767:
		return TagShort
	case n >= math.MinInt32 && n <= math.MaxInt32:
		return TagLong
	}
	return TagFloat
}

func encodeNumber(s Sink, n float64) {
	tag := NumberTag(n)
	s.WriteTag(tag)
	switch tag {
	case TagChar:
		s.WriteInt8(int8(n))
	case TagShort:
		s.WriteInt16(int16(n))
	case TagLong:
		s.WriteInt32(int32(n))
	default:
		s.WriteFloat64(n)
	}
}

// DecodeValue reads exactly one value from s.
func DecodeValue(s Source) (Value, error) {
	tag, err := s.ReadTag()
	if err != nil {
		return nil, err
	}
	return decodeTagged(s, tag, 0)
}

func decodeTagged(s Source, tag Tag, depth int) (Value, error) {
	switch tag {
	case TagNil:
		return Nil{}, nil
	case TagBool:
		b, err := s.ReadBool()
		return Bool(b), err
	case TagChar:
		n, err := s.ReadInt8()
		return Number(n), err
	case TagShort:
		n, err := s.ReadInt16()
		return Number(n), err
	case TagLong:
		n, err := s.ReadInt32()
		return Number(n), err
	case TagFloat:
		n, err := s.ReadFloat64()
		return Number(n), err
	case TagString:
		str, err := s.ReadString()
		return String(str), err
	case TagVector:
		return s.ReadVector()
	case TagAngle:
		return s.ReadAngle()
	case TagEntity:
		return s.ReadEntity()
	case TagTableBegin:
		t, err := decodeTable(s, depth+1)
		if err != nil {
			return nil, err
		}
		return t, nil
	case TagTableEnd:
		return nil, fmt.Errorf("%w: unexpected %s", ErrUnknownTag, tag)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownTag, byte(tag))
}

func decodeTable(s Source, depth int) (*Table, error) {
	if depth > MaxDepth {
		return nil, ErrMaxDepthExceeded
	}
	t := NewTable()
	for {
		tag, err := s.ReadTag()
		if err != nil {
			return nil, err
		}
		if tag == TagTableEnd {
			return t, nil
		}
		k, err := decodeTagged(s, tag, depth)
		if err != nil {
			return nil, err
		}
		if !validKey(k) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidKey, KindName(k))
		}
		vtag, err := s.ReadTag()
		if err != nil {
			return nil, err
		}
		v, err := decodeTagged(s, vtag, depth)
		if err != nil {
			return nil, err
		}
		t.Set(k, v)
	}
}

// Marshal encodes v into a fresh byte slice.
func Marshal(v Value) ([]byte, error) {
	w := NewWriter()
	q := NewQueue(w, true)
	if err := q.Begin(); err != nil {
		return nil, err
	}
	if err := EncodeValue(q, v); err != nil {
		q.Discard()
		return nil, err
	}
	if err := q.End(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal decodes a single value and rejects trailing bytes.
func Unmarshal(data []byte) (Value, error) {
	r := NewReader(data)
	v, err := DecodeValue(r)
	if err != nil {
		return nil, err
	}
	if !r.EOF() {
		return nil, fmt.Errorf("codec: %d trailing bytes", r.Remaining())
	}
	return v, nil
}
