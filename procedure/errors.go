package procedure

import (
	"errors"
	"fmt"
)

// NotFoundError is the "no such entity" result of a procedure. Pages render
// it as a not-found view; it never aborts generation.
type NotFoundError struct {
	Procedure string
	Message   string
}

func (e *NotFoundError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("procedure %s: not found", e.Procedure)
	}
	return fmt.Sprintf("procedure %s: not found: %s", e.Procedure, e.Message)
}

// IsNotFound reports whether err carries a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ErrProcedureNotFound is returned when Call targets a procedure with no
// route and no local handler.
type ErrProcedureNotFound struct {
	Procedure string
}

func (e *ErrProcedureNotFound) Error() string {
	return fmt.Sprintf("procedure: not routable: %s", e.Procedure)
}

// ErrFactoryFailed is logged when a TransportFactory cannot build a route.
type ErrFactoryFailed struct {
	Procedure string
	Strategy  string
	Endpoint  string
	Cause     error
}

func (e *ErrFactoryFailed) Error() string {
	return fmt.Sprintf("procedure: factory %q failed for %s (endpoint %s): %v",
		e.Strategy, e.Procedure, e.Endpoint, e.Cause)
}

func (e *ErrFactoryFailed) Unwrap() error { return e.Cause }

// ErrCircuitOpen is returned when the breaker for a procedure rejects a call.
type ErrCircuitOpen struct {
	Procedure string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("procedure: circuit open: %s", e.Procedure)
}

// ErrPanic wraps a recovered panic value.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("procedure: handler panicked: %v", e.Value)
}

// RemoteError is a failure reported by a remote chirp instance.
type RemoteError struct {
	Procedure string
	Code      int
	Message   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("procedure %s: remote error %d: %s", e.Procedure, e.Code, e.Message)
}
