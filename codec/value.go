// Package codec implements the typed value layer shared by every game-rpc message.
//
// A Value is one of a closed set of variants. Each encoded value is preceded by a
// one-byte Tag so the receiver can dispatch without any out-of-band schema:
//
//	scalar:  [tag][payload]
//	table:   [TagTableBegin] ([key][value])* [TagTableEnd]
//
// Tables keep insertion order, so the wire layout of a given table is stable.
package codec

import (
	"fmt"
	"math"
)

// Value is a dynamically typed value that can cross the wire.
// The set of implementations is closed: Nil, Bool, Number, String, Vector,
// Angle, Entity and *Table.
type Value interface {
	isValue()
}

// Nil is the absent value.
type Nil struct{}

// Bool is a boolean value.
type Bool bool

// Number is a numeric value. Integer-ness only matters for wire size.
type Number float64

// String is a UTF-8 (or arbitrary byte) string.
type String string

// Vector is a position in world space.
type Vector struct {
	X, Y, Z float32
}

// Angle is a pitch/yaw/roll triple in degrees.
type Angle struct {
	P, Y, R float32
}

// Entity references an entity by its network index.
type Entity uint16

func (Nil) isValue()    {}
func (Bool) isValue()   {}
func (Number) isValue() {}
func (String) isValue() {}
func (Vector) isValue() {}
func (Angle) isValue()  {}
func (Entity) isValue() {}
func (*Table) isValue() {}

// Table is an ordered key/value container. Keys may be any non-nil Value;
// iteration and encoding follow insertion order.
type Table struct {
	keys  []Value
	vals  []Value
	index map[Value]int
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{index: make(map[Value]int)}
}

// Seq builds a table holding vs at keys 1..n.
func Seq(vs ...Value) *Table {
	t := NewTable()
	for _, v := range vs {
		t.Append(v)
	}
	return t
}

// validKey reports whether k can be used as a table key.
func validKey(k Value) bool {
	switch k := k.(type) {
	case nil, Nil:
		return false
	case Number:
		return !math.IsNaN(float64(k))
	}
	return true
}

// Set stores v under k. Setting Nil removes the key. Set panics on a nil or NaN
// key, like assigning to a map with an unhashable key.
func (t *Table) Set(k, v Value) {
	if !validKey(k) {
		panic(fmt.Sprintf("codec: invalid table key %#v", k))
	}
	if t.index == nil {
		t.index = make(map[Value]int)
	}
	i, ok := t.index[k]
	if _, isNil := v.(Nil); isNil || v == nil {
		if ok {
			t.remove(i)
		}
		return
	}
	if ok {
		t.vals[i] = v
		return
	}
	t.index[k] = len(t.keys)
	t.keys = append(t.keys, k)
	t.vals = append(t.vals, v)
}

func (t *Table) remove(i int) {
	delete(t.index, t.keys[i])
	t.keys = append(t.keys[:i], t.keys[i+1:]...)
	t.vals = append(t.vals[:i], t.vals[i+1:]...)
	for j := i; j < len(t.keys); j++ {
		t.index[t.keys[j]] = j
	}
}

// Append stores v at the next sequence index (Len()+1).
func (t *Table) Append(v Value) {
	t.Set(Number(t.Len()+1), v)
}

// Get returns the value stored under k.
func (t *Table) Get(k Value) (Value, bool) {
	if t == nil || !validKey(k) {
		return Nil{}, false
	}
	i, ok := t.index[k]
	if !ok {
		return Nil{}, false
	}
	return t.vals[i], true
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Range calls fn for each entry in insertion order until fn returns false.
func (t *Table) Range(fn func(k, v Value) bool) {
	if t == nil {
		return
	}
	for i := range t.keys {
		if !fn(t.keys[i], t.vals[i]) {
			return
		}
	}
}

// Sequence returns the values stored at keys 1..n, stopping at the first gap.
func (t *Table) Sequence() []Value {
	var out []Value
	for i := 1; ; i++ {
		v, ok := t.Get(Number(i))
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// KindName returns a short human readable name for v's variant.
func KindName(v Value) string {
	switch v.(type) {
	case Nil:
		return "nil"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Vector:
		return "vector"
	case Angle:
		return "angle"
	case Entity:
		return "entity"
	case *Table:
		return "table"
	}
	return fmt.Sprintf("%T", v)
}
