package chatclient

import "fmt"

// ErrorCode categorizes every failure this package reports.
type ErrorCode int

const (
	// CodeTransportInit: the connection handshake could not even start.
	CodeTransportInit ErrorCode = iota + 1

	// CodeReconnectExhausted: automatic recovery gave up after the configured
	// number of attempts. Only a manual Reconnect leaves this situation.
	CodeReconnectExhausted

	// CodeSendWhileDisconnected: a send was attempted while the connection
	// was not in the connected state. The transport was not touched.
	CodeSendWhileDisconnected

	// CodeSendWithoutActiveRoom: a send was attempted with no community
	// joined. The transport was not touched.
	CodeSendWithoutActiveRoom

	// CodeServerRelayed: an opaque error surfaced by the transport itself,
	// either an error frame from the server or a transport-level failure.
	CodeServerRelayed

	// CodeInvalidConfig: the client configuration failed validation.
	CodeInvalidConfig
)

func (c ErrorCode) String() string {
	switch c {
	case CodeTransportInit:
		return "transport_init"
	case CodeReconnectExhausted:
		return "reconnect_exhausted"
	case CodeSendWhileDisconnected:
		return "send_while_disconnected"
	case CodeSendWithoutActiveRoom:
		return "send_without_active_room"
	case CodeServerRelayed:
		return "server_relayed"
	case CodeInvalidConfig:
		return "invalid_config"
	default:
		return fmt.Sprintf("unknown_code_%d", int(c))
	}
}

// Error is a structured client error with a code and optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is matches any *Error carrying the same code, so callers can test against
// the package sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Wrapped: err}
}

// Sentinels for errors.Is comparisons. Reported errors carry their own
// message and cause; these only fix the code.
var (
	ErrTransportInit         = newError(CodeTransportInit, "transport initialization failed")
	ErrReconnectExhausted    = newError(CodeReconnectExhausted, "reconnect attempts exhausted")
	ErrSendWhileDisconnected = newError(CodeSendWhileDisconnected, "not connected")
	ErrSendWithoutActiveRoom = newError(CodeSendWithoutActiveRoom, "no active community")
	ErrServerRelayed         = newError(CodeServerRelayed, "server relayed error")
	ErrInvalidConfig         = newError(CodeInvalidConfig, "invalid configuration")
)
