package rpc

import (
	"context"
	"fmt"
	"reflect"

	"game-rpc/codec"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	argsType    = reflect.TypeOf([]codec.Value(nil))
)

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]reflect.Method
}

// newService scans rcvr for methods callable remotely:
//
//	func (r *T) Name(ctx context.Context, args []codec.Value) error
func newService(name string, rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: receiver must be a pointer, got %v", typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: receiver must point to a struct, got %s", typ.Elem().Kind())
	}
	if name == "" {
		name = typ.Elem().Name()
	}
	s := &service{
		name:   name,
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]reflect.Method),
	}
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		mt := m.Type
		if mt.NumIn() != 3 || mt.NumOut() != 1 || mt.Out(0) != errorType ||
			mt.In(1) != contextType || mt.In(2) != argsType {
			continue
		}
		s.method[m.Name] = m
	}
	if len(s.method) == 0 {
		return nil, fmt.Errorf("rpc: %s has no methods of the form func(context.Context, []codec.Value) error", name)
	}
	return s, nil
}

func (s *service) call(ctx context.Context, m reflect.Method, args []codec.Value) error {
	in := [3]reflect.Value{s.rcvr, reflect.ValueOf(ctx), reflect.ValueOf(args)}
	out := m.Func.Call(in[:])
	if err, _ := out[0].Interface().(error); err != nil {
		return err
	}
	return nil
}
