// Package rpcerr defines the single error type surfaced to callers of the framework.
//
// Every failure that leaves a framework component is an *Error carrying a Kind tag, so callers
// can branch on the kind without inspecting lower level I/O errors.
package rpcerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure.
type Kind int

const (
	Unknown Kind = iota
	// ServiceNotFound: no provider is registered for a service key.
	ServiceNotFound
	// ConnectionFailure: a resolved address could not be reached.
	ConnectionFailure
	// MalformedAddress: a cached or returned address does not parse as host:port.
	MalformedAddress
	// DispatchFailure: the provider could not find or invoke the target method.
	DispatchFailure
	// ConfigurationError: unknown extension name or invalid configuration.
	ConfigurationError
	// CoordinationTimeout: the initial connection to the coordination service timed out.
	CoordinationTimeout
	// Transport: encoding, decoding or framing failed on an established connection.
	Transport
)

var kindNames = map[Kind]string{
	Unknown:             "unknown",
	ServiceNotFound:     "service not found",
	ConnectionFailure:   "connection failure",
	MalformedAddress:    "malformed address",
	DispatchFailure:     "dispatch failure",
	ConfigurationError:  "configuration error",
	CoordinationTimeout: "coordination timeout",
	Transport:           "transport error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the framework's uniform error.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Detail is Error without the kind prefix.
func (e *Error) Detail() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Cause returns the underlying error, compatible with errors.Cause.
func (e *Error) Cause() error { return e.cause }

func (e *Error) Unwrap() error { return e.cause }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf returns the kind of the outermost *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		next := errors.Unwrap(err)
		if next == nil {
			if c, ok := err.(interface{ Cause() error }); ok {
				next = c.Cause()
			}
		}
		err = next
	}
	return Unknown
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
