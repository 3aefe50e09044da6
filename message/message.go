// Package message defines the request and response objects exchanged between consumer and provider.
//
// An RpcRequest is built by the caller, serialized by the codec layer and wrapped in a
// protocol frame. Exactly one RpcResponse travels back on the same connection.
package message

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// keySeparator joins the parts of a rendered ServiceKey. Interface names, groups and versions
// never contain it, so two different keys never render to the same string.
const keySeparator = "::"

// ServiceKey identifies a logical service across providers.
type ServiceKey struct {
	Interface string
	Version   string
	Group     string
}

// String renders the key as "interface::version::group".
func (k ServiceKey) String() string {
	return k.Interface + keySeparator + k.Version + keySeparator + k.Group
}

// ParseServiceKey is the inverse of ServiceKey.String.
func ParseServiceKey(s string) (ServiceKey, error) {
	parts := strings.Split(s, keySeparator)
	if len(parts) != 3 || parts[0] == "" {
		return ServiceKey{}, errors.Errorf("invalid service key %q", s)
	}
	return ServiceKey{Interface: parts[0], Version: parts[1], Group: parts[2]}, nil
}

// RpcRequest carries everything the provider needs to dispatch one call.
//
// Parameters are encoded one by one so the provider can decode each of them into the
// concrete Go type of the matching formal parameter. ParamTypes is positionally aligned
// with Parameters and holds the descriptors produced by TypeName.
type RpcRequest struct {
	RequestID     string            `json:"requestId"`
	InterfaceName string            `json:"interfaceName"`
	MethodName    string            `json:"methodName"`
	Parameters    []json.RawMessage `json:"parameters"`
	ParamTypes    []string          `json:"paramTypes"`
	Version       string            `json:"version"`
	Group         string            `json:"group"`
}

// Key returns the structured service key of the request.
func (r *RpcRequest) Key() ServiceKey {
	return ServiceKey{Interface: r.InterfaceName, Version: r.Version, Group: r.Group}
}

// ServiceKey returns the rendered service key used by the registry, discovery and provider table.
func (r *RpcRequest) ServiceKey() string {
	return r.Key().String()
}

// HashKey is the consistent hashing input: the service key followed by the encoded parameters.
// Two requests with identical arguments to the same service produce the same hash key.
func (r *RpcRequest) HashKey() string {
	var b strings.Builder
	b.WriteString(r.ServiceKey())
	for _, p := range r.Parameters {
		b.Write(p)
	}
	return b.String()
}

// Code is the status of an RpcResponse.
type Code int

const (
	CodeSuccess  Code = 200
	CodeFail     Code = 500
	CodeNotFound Code = 404
)

// RpcResponse is the provider's answer to one RpcRequest.
//
//   - Success: Code == CodeSuccess and Data holds the encoded result (may be empty for methods without one).
//   - Failure: Code is CodeFail or CodeNotFound and Message describes the error.
type RpcResponse struct {
	RequestID string          `json:"requestId"`
	Code      Code            `json:"code"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Success builds a successful response for the request with the given id.
func Success(requestID string, data json.RawMessage) *RpcResponse {
	return &RpcResponse{RequestID: requestID, Code: CodeSuccess, Data: data}
}

// Failure builds a failed response.
func Failure(requestID string, code Code, msg string) *RpcResponse {
	return &RpcResponse{RequestID: requestID, Code: code, Message: msg}
}

// OK reports whether the response carries a result.
func (r *RpcResponse) OK() bool {
	return r.Code == CodeSuccess
}
