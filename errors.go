package soletic

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrorKind classifies failures surfaced by DeploymentTimestamp.
type ErrorKind int

const (
	KindInvalidSyntax ErrorKind = iota + 1
	KindInvalidAddress
	KindProgramStateNotSupported
	KindRPC
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidSyntax:
		return "InvalidSyntax"
	case KindInvalidAddress:
		return "InvalidAddress"
	case KindProgramStateNotSupported:
		return "ProgramStateNotSupported"
	case KindRPC:
		return "RpcError"
	default:
		return "Unknown"
	}
}

const (
	codeBadRequest         = 400
	codeUnsupportedState   = 415
	codeNoUpstreamResponse = -1
)

var rpcStatusMessages = map[int]string{
	401: "Unauthorized. Invalid API key or restricted access due to Access Control Rules.",
	429: "Too Many Requests. Exceeded Rate Limits.",
	500: "Internal Server Error. Contact Helius support for assistance",
	503: "Service Unavailable. Server is temporarily overloaded or under maintenance.",
	504: "Gateway Timeout",
}

const unknownStatusMessage = "Unknown Status Code"

// Error is the structured failure carried inside a Result.
type Error struct {
	Kind    ErrorKind
	Code    int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Format renders the error the way the CLI prints it: "<code> | <message>".
func (e *Error) Format() string {
	if e == nil {
		return ""
	}
	return strconv.Itoa(e.Code) + " | " + e.Message
}

func invalidSyntaxf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidSyntax, Code: codeBadRequest, Message: fmt.Sprintf(format, args...)}
}

func invalidAddressf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidAddress, Code: codeBadRequest, Message: fmt.Sprintf(format, args...)}
}

func unsupportedStatef(format string, args ...any) *Error {
	return &Error{Kind: KindProgramStateNotSupported, Code: codeUnsupportedState, Message: fmt.Sprintf(format, args...)}
}

// newRPCError maps an upstream HTTP status onto the fixed message table.
func newRPCError(status int, cause error) *Error {
	message, ok := rpcStatusMessages[status]
	if !ok {
		message = unknownStatusMessage
	}
	return &Error{Kind: KindRPC, Code: status, Message: message, cause: cause}
}

// asError extracts the structured error, wrapping anything unexpected as an
// RPC failure without upstream status.
func asError(err error) *Error {
	if err == nil {
		return nil
	}
	var target *Error
	if errors.As(err, &target) {
		return target
	}
	return newRPCError(codeNoUpstreamResponse, err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var target *Error
	return errors.As(err, &target) && target.Kind == kind
}

// newRPCFailure reports a JSON-RPC level error object returned with a
// successful HTTP status.
func newRPCFailure(code int, message string) *Error {
	return &Error{
		Kind:    KindRPC,
		Code:    codeNoUpstreamResponse,
		Message: fmt.Sprintf("%s (rpc error %d: %s)", unknownStatusMessage, code, message),
	}
}
