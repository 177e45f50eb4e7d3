package codec

import (
	"fmt"
	"reflect"
	"sort"
)

// FromGo classifies a native Go value and converts it to a Value.
//
// Slices and arrays become sequence tables (keys 1..n). Maps become tables whose
// keys are sorted (numbers, then strings, then booleans, each ascending) so the
// encoding of a given map is deterministic. Named types convert by their
// underlying kind, so a time.Duration becomes a Number. Channels, functions,
// structs and pointers other than *Table are rejected with ErrUnsupportedType.
func FromGo(v any) (Value, error) {
	return fromGo(v, 0)
}

func fromGo(v any, depth int) (Value, error) {
	if depth > MaxDepth {
		return nil, ErrMaxDepthExceeded
	}
	switch v := v.(type) {
	case nil:
		return Nil{}, nil
	case *Table:
		if v == nil {
			return Nil{}, nil
		}
		return v, nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case string:
		return String(v), nil
	case []byte:
		return String(v), nil
	case int:
		return Number(v), nil
	case int8:
		return Number(v), nil
	case int16:
		return Number(v), nil
	case int32:
		return Number(v), nil
	case int64:
		return Number(v), nil
	case uint:
		return Number(v), nil
	case uint8:
		return Number(v), nil
	case uint16:
		return Number(v), nil
	case uint32:
		return Number(v), nil
	case uint64:
		return Number(v), nil
	case float32:
		return Number(v), nil
	case float64:
		return Number(v), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		t := NewTable()
		for i := 0; i < rv.Len(); i++ {
			elem, err := fromGo(rv.Index(i).Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			// nil elements still occupy their index so positions survive
			if _, isNil := elem.(Nil); isNil {
				continue
			}
			t.Set(Number(i+1), elem)
		}
		return t, nil
	case reflect.Map:
		keys := make([]Value, 0, rv.Len())
		vals := make(map[Value]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := fromGo(iter.Key().Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			if !validKey(k) {
				return nil, fmt.Errorf("%w: %s", ErrInvalidKey, KindName(k))
			}
			val, err := fromGo(iter.Value().Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
			vals[k] = val
		}
		sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
		t := NewTable()
		for _, k := range keys {
			t.Set(k, vals[k])
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

func keyRank(v Value) int {
	switch v.(type) {
	case Number:
		return 0
	case String:
		return 1
	case Bool:
		return 2
	}
	return 3
}

func keyLess(a, b Value) bool {
	ra, rb := keyRank(a), keyRank(b)
	if ra != rb {
		return ra < rb
	}
	switch a := a.(type) {
	case Number:
		return a < b.(Number)
	case String:
		return a < b.(String)
	case Bool:
		return !bool(a) && bool(b.(Bool))
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

// ToGo converts v back to plain Go values: nil, bool, float64, string,
// []any for pure sequences and map[string]any for string-keyed tables.
// Vectors, angles, entities and other tables are returned as is.
func ToGo(v Value) any {
	switch v := v.(type) {
	case nil, Nil:
		return nil
	case Bool:
		return bool(v)
	case Number:
		return float64(v)
	case String:
		return string(v)
	case *Table:
		if seq := v.Sequence(); len(seq) == v.Len() {
			out := make([]any, len(seq))
			for i, e := range seq {
				out[i] = ToGo(e)
			}
			return out
		}
		out := make(map[string]any, v.Len())
		ok := true
		v.Range(func(k, val Value) bool {
			s, isStr := k.(String)
			if !isStr {
				ok = false
				return false
			}
			out[string(s)] = ToGo(val)
			return true
		})
		if !ok {
			return v
		}
		return out
	}
	return v
}

// Equal reports whether a and b hold the same value. Tables are equal when
// they hold equal pairs in the same order.
func Equal(a, b Value) bool {
	switch a := a.(type) {
	case nil, Nil:
		switch b.(type) {
		case nil, Nil:
			return true
		}
		return false
	case *Table:
		bt, ok := b.(*Table)
		if !ok || a.Len() != bt.Len() {
			return false
		}
		if a.Len() == 0 {
			return true
		}
		for i := range a.keys {
			if !Equal(a.keys[i], bt.keys[i]) || !Equal(a.vals[i], bt.vals[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}
