// Package apperrors defines the named failure kinds raised by the
// lifecycle and workflow layers, and their stable mapping to HTTP status
// codes. The HTTP error-handler middleware is the sole consumer of
// StatusFor; every other component surfaces typed *Error values instead
// of calling http.Error directly.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind names one of the recognized failure categories.
type Kind string

const (
	KindAgentNotFound                Kind = "AgentNotFound"
	KindAgentAlreadyExists           Kind = "AgentAlreadyExists"
	KindSessionNotFound              Kind = "SessionNotFound"
	KindWorkflowDefinitionNotFound   Kind = "WorkflowDefinitionNotFound"
	KindWorkflowDefinitionConflict   Kind = "WorkflowDefinitionConflict"
	KindInvalidState                 Kind = "InvalidState"
	KindInvalidRequest               Kind = "InvalidRequest"
	KindUnauthorized                 Kind = "Unauthorized"
	KindStorageError                 Kind = "StorageError"
	KindTaskDispatchError            Kind = "TaskDispatchError"
	KindConfigurationError           Kind = "ConfigurationError"
)

// Error is a typed failure value carrying a Kind and an optional wrapped
// cause. The cause is logged internally but never echoed to an external
// client beyond the safe Message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error of the given kind with a message and no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// statusByKind mirrors the error-handling table: known kinds map to a
// fixed HTTP status; TaskDispatchError and ConfigurationError never reach
// the HTTP layer and have no entry here.
var statusByKind = map[Kind]int{
	KindAgentNotFound:              http.StatusNotFound,
	KindAgentAlreadyExists:         http.StatusConflict,
	KindSessionNotFound:            http.StatusNotFound,
	KindWorkflowDefinitionNotFound: http.StatusNotFound,
	KindWorkflowDefinitionConflict: http.StatusConflict,
	KindInvalidState:               http.StatusBadRequest,
	KindInvalidRequest:             http.StatusBadRequest,
	KindUnauthorized:               http.StatusUnauthorized,
	KindStorageError:               http.StatusServiceUnavailable,
}

// StatusFor maps err to the HTTP status code it should produce. Unknown
// or untyped errors map to 500, matching the "generic body" policy for
// unrecognized failures.
func StatusFor(err error) int {
	if kind, ok := KindOf(err); ok {
		if status, ok := statusByKind[kind]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// Detail returns the safe, user-visible summary string for err: for a
// recognized Kind, the Kind name followed by ": " and the message when
// one is set; the generic internal-error body for anything else.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if _, ok := statusByKind[e.Kind]; ok {
			if e.Message != "" {
				return string(e.Kind) + ": " + e.Message
			}
			return string(e.Kind)
		}
	}
	return "Internal Server Error"
}
