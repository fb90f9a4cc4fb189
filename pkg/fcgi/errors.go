package fcgi

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine errors.
type ErrorKind int

const (
	// KindIO is a read, write or close failure on the stream
	KindIO ErrorKind = iota
	// KindProtocol is a malformed or unexpected record
	KindProtocol
	// KindUnexpectedEOF means the stream ended before FCGI_END_REQUEST
	KindUnexpectedEOF
	// KindRequestIDConflict means the request id is already in flight
	KindRequestIDConflict
	// KindConnClosed means the connection can no longer serve requests
	KindConnClosed
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindProtocol:
		return "protocol"
	case KindUnexpectedEOF:
		return "unexpected eof"
	case KindRequestIDConflict:
		return "request id conflict"
	case KindConnClosed:
		return "connection closed"
	default:
		return "unknown"
	}
}

var (
	ErrConnClosed        = errors.New("fcgi: connection closed")
	ErrUnexpectedEOF     = errors.New("fcgi: stream closed before end of request")
	ErrRequestIDConflict = errors.New("fcgi: request id already in flight")
	ErrContentTooLarge   = errors.New("fcgi: record content exceeds 65535 bytes")
	ErrNoRequestID       = errors.New("fcgi: no free request id")
)

// Error is the error type returned by Conn operations.
type Error struct {
	Kind      ErrorKind
	Op        string
	RequestID uint16
	Err       error
}

func (e *Error) Error() string {
	if e.RequestID != 0 {
		return fmt.Sprintf("fcgi: %s (request %d): %v", e.Op, e.RequestID, e.Err)
	}
	return fmt.Sprintf("fcgi: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel that corresponds to the error kind, so that
// errors.Is(err, ErrConnClosed) holds for every KindConnClosed error.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConnClosed:
		return e.Kind == KindConnClosed
	case ErrUnexpectedEOF:
		return e.Kind == KindUnexpectedEOF
	case ErrRequestIDConflict:
		return e.Kind == KindRequestIDConflict
	}
	return false
}

// Fatal reports whether the connection is unusable after this error.
func (e *Error) Fatal() bool {
	switch e.Kind {
	case KindIO, KindProtocol, KindUnexpectedEOF, KindConnClosed:
		return true
	default:
		return false
	}
}

func wrapErr(kind ErrorKind, op string, id uint16, err error) *Error {
	return &Error{Kind: kind, Op: op, RequestID: id, Err: err}
}

// ProtocolError reports a record the client cannot accept.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "fcgi: protocol error: " + e.Reason
}

// StatusError is returned by Response.Err when the application did not
// complete the request.
type StatusError struct {
	ProtocolStatus ProtocolStatus
	AppStatus      int32
}

func (e *StatusError) Error() string {
	switch e.ProtocolStatus {
	case StatusCantMultiplex:
		return fmt.Sprintf("fcgi: app can't multiplex [CANT_MPX_CONN]; app status %d", e.AppStatus)
	case StatusOverloaded:
		return fmt.Sprintf("fcgi: request rejected, app too busy [OVERLOADED]; app status %d", e.AppStatus)
	case StatusUnknownRole:
		return fmt.Sprintf("fcgi: role not known [UNKNOWN_ROLE]; app status %d", e.AppStatus)
	default:
		return fmt.Sprintf("fcgi: request not complete [%s]; app status %d", e.ProtocolStatus, e.AppStatus)
	}
}

// classify turns a stream or decode error into an *Error of the right kind.
func classify(op string, id uint16, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return wrapErr(KindProtocol, op, id, err)
	}
	if errors.Is(err, ErrConnClosed) {
		return wrapErr(KindConnClosed, op, id, err)
	}
	return wrapErr(KindIO, op, id, err)
}
