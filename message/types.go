package message

import (
	"encoding/json"
	"reflect"

	"github.com/pkg/errors"
)

// TypeName returns the descriptor of t used in RpcRequest.ParamTypes.
// It is the Go type string, e.g. "string", "int", "*hello.Hello", "[]string".
func TypeName(t reflect.Type) string {
	return t.String()
}

// EncodeParams encodes args one by one and records their type descriptors.
func EncodeParams(args ...any) ([]json.RawMessage, []string, error) {
	params := make([]json.RawMessage, 0, len(args))
	types := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == nil {
			return nil, nil, errors.Errorf("parameter %d is nil", i)
		}
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "encode parameter %d", i)
		}
		params = append(params, data)
		types = append(types, TypeName(reflect.TypeOf(arg)))
	}
	return params, types, nil
}
