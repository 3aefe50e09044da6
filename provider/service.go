package provider

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"guide-rpc/message"
	"guide-rpc/rpcerr"

	"github.com/pkg/errors"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// methodType is the invocation adapter of one exported method.
type methodType struct {
	method     reflect.Method
	withCtx    bool           // first formal parameter is a context.Context
	argTypes   []reflect.Type // formal parameters after the optional context
	typeNames  []string       // message.TypeName of argTypes
	hasResult  bool           // (R, error) rather than error
	resultType reflect.Type
}

func (m *methodType) signature() string {
	return m.method.Name + "(" + strings.Join(m.typeNames, ", ") + ")"
}

// service is the method registry of one instance, built once at registration.
type service struct {
	name    string
	rcvr    reflect.Value
	typ     reflect.Type
	methods map[string]*methodType
}

// newService scans rcvr for callable methods. A callable method is exported and returns either
// error or (R, error). It may take a context.Context first; every other parameter must be
// JSON-decodable.
func newService(rcvr any) (*service, error) {
	if rcvr == nil {
		return nil, errors.New("provider: nil service instance")
	}
	typ := reflect.TypeOf(rcvr)
	val := reflect.ValueOf(rcvr)
	if typ.Kind() == reflect.Ptr && val.IsNil() {
		return nil, errors.Errorf("provider: nil %s", typ)
	}

	svc := &service{
		name:    reflect.Indirect(val).Type().Name(),
		rcvr:    val,
		typ:     typ,
		methods: make(map[string]*methodType),
	}
	svc.registerMethods()
	if len(svc.methods) == 0 {
		return nil, errors.Errorf("provider: type %s has no callable methods", typ)
	}
	return svc, nil
}

func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := newMethodType(method)
		if mt == nil {
			continue
		}
		s.methods[method.Name] = mt
	}
}

func newMethodType(method reflect.Method) *methodType {
	if !method.IsExported() {
		return nil
	}
	ft := method.Type
	switch {
	case ft.NumOut() == 1 && ft.Out(0) == errorType:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
	default:
		return nil
	}
	if ft.IsVariadic() {
		return nil
	}

	mt := &methodType{method: method}
	first := 1 // skip the receiver
	if ft.NumIn() > 1 && ft.In(1) == contextType {
		mt.withCtx = true
		first = 2
	}
	for i := first; i < ft.NumIn(); i++ {
		in := ft.In(i)
		switch in.Kind() {
		case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Interface:
			return nil
		}
		mt.argTypes = append(mt.argTypes, in)
		mt.typeNames = append(mt.typeNames, message.TypeName(in))
	}
	if ft.NumOut() == 2 {
		mt.hasResult = true
		mt.resultType = ft.Out(0)
	}
	return mt
}

// methodNames returns the registered method names in sorted order.
func (s *service) methodNames() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lookup resolves a method by name. Callers may use the lower camel case form ("hello" for Hello).
func (s *service) lookup(name string) (*methodType, bool) {
	if mt, ok := s.methods[name]; ok {
		return mt, true
	}
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return nil, false
	}
	mt, ok := s.methods[string(unicode.ToUpper(r))+name[size:]]
	return mt, ok
}

// call dispatches req to the matching method and returns its encoded result.
// Every failure, including a panic in the method, is a DispatchFailure.
func (s *service) call(ctx context.Context, req *message.RpcRequest) (result json.RawMessage, err error) {
	mt, ok := s.lookup(req.MethodName)
	if !ok {
		return nil, rpcerr.New(rpcerr.DispatchFailure, "method %s not found on %s", req.MethodName, req.ServiceKey())
	}
	if !sameTypes(mt.typeNames, req.ParamTypes) || len(req.Parameters) != len(mt.argTypes) {
		return nil, rpcerr.New(rpcerr.DispatchFailure, "no method %s(%s) on %s, have %s",
			req.MethodName, strings.Join(req.ParamTypes, ", "), req.ServiceKey(), mt.signature())
	}

	args := make([]reflect.Value, 0, len(mt.argTypes)+2)
	args = append(args, s.rcvr)
	if mt.withCtx {
		args = append(args, reflect.ValueOf(ctx))
	}
	for i, t := range mt.argTypes {
		argv := reflect.New(t)
		if err := json.Unmarshal(req.Parameters[i], argv.Interface()); err != nil {
			return nil, rpcerr.Wrap(rpcerr.DispatchFailure, err, "decode parameter %d of %s", i, mt.signature())
		}
		args = append(args, argv.Elem())
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = rpcerr.Wrap(rpcerr.DispatchFailure, errors.Errorf("panic: %v", r), "%s panicked", mt.signature())
		}
	}()
	out := mt.method.Func.Call(args)

	if errv := out[len(out)-1]; !errv.IsNil() {
		return nil, rpcerr.Wrap(rpcerr.DispatchFailure, errv.Interface().(error), "%s failed", mt.signature())
	}
	if !mt.hasResult {
		return nil, nil
	}
	data, err := json.Marshal(out[0].Interface())
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.DispatchFailure, err, "encode result of %s", mt.signature())
	}
	return data, nil
}

func sameTypes(want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}
