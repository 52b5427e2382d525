package client

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	// KindUsage marks misuse of the client API, e.g. operating on a
	// transaction before Start or after End.
	KindUsage Kind = "Usage"
	// KindAuth marks authentication and token handshake failures.
	KindAuth Kind = "Auth"
	// KindProtocol marks transport and server-side failures.
	KindProtocol Kind = "Protocol"
	// KindDecode marks failures interpreting payloads from the server.
	KindDecode Kind = "Decode"
)

// Error is the client's structured error type.
//
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func wrapError(kind Kind, msg string, cause error) error {
	if cause == nil {
		return newError(kind, msg)
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// rpcError normalizes a gRPC failure into a structured client error.
func rpcError(msg string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return wrapError(KindProtocol, msg, err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return wrapError(KindAuth, msg, err)
	case codes.InvalidArgument, codes.FailedPrecondition:
		return wrapError(KindUsage, msg, err)
	default:
		return wrapError(KindProtocol, msg, err)
	}
}
