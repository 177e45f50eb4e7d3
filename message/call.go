package message

import (
	"fmt"

	"game-rpc/codec"
	"game-rpc/protocol"
)

// Envelope keys.
const (
	KeyFunction = "fn"
	KeyArgs     = "args"
	KeyArity    = "n"
)

// MaxArgs caps the argument count of one call.
const MaxArgs = 255

// Call is the envelope of one remote function call.
//
// Function is opaque to the sender; it may be a dotted path the receiver
// resolves. Nil arguments keep their position.
type Call struct {
	Function string
	Args     []codec.Value
}

func (*Call) Type() protocol.MsgType { return protocol.MsgTypeCall }

// Envelope returns the table form {fn = Function, args = {Args...}}.
func (c *Call) Envelope() *codec.Table {
	args := codec.NewTable()
	for i, a := range c.Args {
		if a == nil {
			continue
		}
		args.Set(codec.Number(i+1), a)
	}
	if n := len(c.Args); n > 0 {
		// record the arity so trailing nils survive
		args.Set(codec.String(KeyArity), codec.Number(n))
	}
	env := codec.NewTable()
	env.Set(codec.String(KeyFunction), codec.String(c.Function))
	env.Set(codec.String(KeyArgs), args)
	return env
}

func (c *Call) MarshalTo(s codec.Sink) error {
	return codec.EncodeValue(s, c.Envelope())
}

func (c *Call) UnmarshalFrom(s codec.Source) error {
	v, err := codec.DecodeValue(s)
	if err != nil {
		return err
	}
	env, ok := v.(*codec.Table)
	if !ok {
		return fmt.Errorf("%w: envelope is %s", ErrMalformed, codec.KindName(v))
	}
	return c.FromEnvelope(env)
}

// FromEnvelope fills c from its table form.
func (c *Call) FromEnvelope(env *codec.Table) error {
	fn, _ := env.Get(codec.String(KeyFunction))
	name, ok := fn.(codec.String)
	if !ok || name == "" {
		return fmt.Errorf("%w: envelope has no function name", ErrMalformed)
	}
	c.Function = string(name)
	c.Args = nil

	raw, ok := env.Get(codec.String(KeyArgs))
	if !ok {
		return nil
	}
	args, ok := raw.(*codec.Table)
	if !ok {
		return fmt.Errorf("%w: args is %s", ErrMalformed, codec.KindName(raw))
	}

	n := 0
	if nv, ok := args.Get(codec.String(KeyArity)); ok {
		num, ok := nv.(codec.Number)
		if !ok || num < 0 || num > MaxArgs {
			return fmt.Errorf("%w: arity %v", ErrMalformed, nv)
		}
		n = int(num)
	}
	var bad bool
	args.Range(func(k, _ codec.Value) bool {
		num, ok := k.(codec.Number)
		if !ok {
			return true
		}
		if num < 1 || num > MaxArgs || float64(num) != float64(int(num)) {
			bad = true
			return false
		}
		if int(num) > n {
			n = int(num)
		}
		return true
	})
	if bad {
		return fmt.Errorf("%w: bad argument index", ErrMalformed)
	}
	c.Args = make([]codec.Value, n)
	for i := range c.Args {
		v, ok := args.Get(codec.Number(i + 1))
		if !ok {
			v = codec.Nil{}
		}
		c.Args[i] = v
	}
	return nil
}

// CallChunk carries one slice of an encoded Call that did not fit in a frame.
type CallChunk struct {
	ID    int
	Index int
	Total int
	Data  []byte
}

func (*CallChunk) Type() protocol.MsgType { return protocol.MsgTypeCallChunk }

func (c *CallChunk) MarshalTo(s codec.Sink) error {
	for _, n := range []int{c.ID, c.Index, c.Total} {
		if err := codec.EncodeValue(s, codec.Number(n)); err != nil {
			return err
		}
	}
	return codec.EncodeValue(s, codec.String(c.Data))
}

func (c *CallChunk) UnmarshalFrom(s codec.Source) error {
	var err error
	if c.ID, err = readInt(s); err != nil {
		return err
	}
	if c.Index, err = readInt(s); err != nil {
		return err
	}
	if c.Total, err = readInt(s); err != nil {
		return err
	}
	if c.Index >= c.Total {
		return fmt.Errorf("%w: chunk %d of %d", ErrMalformed, c.Index, c.Total)
	}
	var data string
	if err := readStrings(s, &data); err != nil {
		return err
	}
	c.Data = []byte(data)
	return nil
}
