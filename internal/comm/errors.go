package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoggedIn is wrapped by the ProtocolError raised for any message
	// other than INI on a connection that has not logged in.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrUnsupported marks a recognised opcode that is deliberately not
	// implemented (FLW).
	ErrUnsupported = errors.New("unsupported message")

	// ErrUnknownOpcode is wrapped when a frame carries a code outside the
	// protocol vocabulary.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrMalformed is wrapped for framing and argument-count violations.
	ErrMalformed = errors.New("malformed message")

	// ErrUnexpectedReply is wrapped when a RET arrives with no request
	// waiting for it.
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// ProtocolError is a fatal error for one connection: the peer sent something
// the protocol does not allow. The transport owner closes the connection.
type ProtocolError struct {
	Op     Opcode
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := "protocol error"
	if e.Op != OpInvalid {
		msg += " in " + e.Op.String()
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError builds a ProtocolError with a formatted reason.
func NewProtocolError(op Opcode, err error, format string, args ...any) *ProtocolError {
	return &ProtocolError{Op: op, Reason: fmt.Sprintf(format, args...), Err: err}
}

// IsProtocolError reports whether err is, or wraps, a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
