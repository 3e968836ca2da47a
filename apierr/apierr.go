// Package apierr defines the control plane's error taxonomy. Kinds
// carry an HTTP status for documentation and test parity with the
// resource API's error contract, even though this repo does not itself
// serve HTTP — the transport is an external collaborator.
package apierr

import "fmt"

// Kind classifies an Error for programmatic handling and for mapping
// to a transport-level status code at the (out of scope) API boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidRequest
	KindInvalidValue
	KindUnavailable
)

// httpStatus mirrors the resource API's documented status codes
// without this repo serving HTTP itself.
var httpStatus = map[Kind]int{
	KindInternal:       500,
	KindNotFound:       404,
	KindAlreadyExists:  400,
	KindInvalidRequest: 400,
	KindInvalidValue:   400,
	KindUnavailable:    503,
}

// Error is the concrete error type returned across package boundaries
// in this repo. It carries enough structure for a caller to classify
// the failure without string matching.
type Error struct {
	Kind    Kind
	Type    string // resource type, e.g. "project", "instance" (NotFound/AlreadyExists only)
	Name    string // resource name/id (NotFound/AlreadyExists only)
	Message string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("not found: %s with name %q", e.Type, e.Name)
	case KindAlreadyExists:
		return fmt.Sprintf("already exists: %s %q", e.Type, e.Name)
	default:
		return e.Message
	}
}

// HTTPStatus returns the status code the (external) API boundary
// would render this error as.
func (e *Error) HTTPStatus() int {
	return httpStatus[e.Kind]
}

// NotFound builds an ObjectNotFound error for the given resource type/name.
func NotFound(resourceType, name string) *Error {
	return &Error{Kind: KindNotFound, Type: resourceType, Name: name}
}

// AlreadyExists builds an ObjectAlreadyExists error for the given resource type/name.
func AlreadyExists(resourceType, name string) *Error {
	return &Error{Kind: KindAlreadyExists, Type: resourceType, Name: name}
}

// InvalidRequest builds an InvalidRequest error with a formatted message.
func InvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// InvalidValue builds an InvalidValue error naming the offending field/label.
func InvalidValue(label, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidValue, Message: fmt.Sprintf("%s: %s", label, fmt.Sprintf(format, args...))}
}

// Unavailable builds a ServiceUnavailable error, used for sled/transport failures.
func Unavailable(format string, args ...any) *Error {
	return &Error{Kind: KindUnavailable, Message: fmt.Sprintf(format, args...)}
}

// Internal builds an InternalError for invariant violations that are
// returned to a caller rather than crashing the process outright.
func Internal(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is an *Error of the given Kind, so callers can
// use errors.Is-style matching via errors.As plus a Kind check, or this
// helper directly.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
