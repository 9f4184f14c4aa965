package bridge

import (
	"errors"
	"fmt"
)

var (
	ErrClosed          = errors.New("bridge: closed")
	ErrEmptyName       = errors.New("bridge: empty name")
	ErrInvalidFunction = errors.New("bridge: function name is not an identifier path")
	ErrMalformedResult = errors.New("bridge: evaluation result is not valid JSON")
)

// InvalidURLError is returned by LoadScript when the URL cannot be loaded.
// The readiness state is left unchanged.
type InvalidURLError struct {
	URL string
	Err error
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("bridge: invalid url %q: %v", e.URL, e.Err)
}

func (e *InvalidURLError) Unwrap() error { return e.Err }

// SerializationError is returned by Invoke when the argument has no JSON
// representation. The call is neither queued nor dispatched.
type SerializationError struct {
	Function string
	Err      error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("bridge: cannot serialize argument for %s: %v", e.Function, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// EvaluationError reports a failed evaluation of a dispatched call. The
// call is not retried and its callback is never invoked.
type EvaluationError struct {
	Function   string
	Expression string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("bridge: evaluating %s: %v", e.Expression, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// UnroutedMessageError reports a script message for a name with no handler.
type UnroutedMessageError struct {
	Name string
}

func (e *UnroutedMessageError) Error() string {
	return fmt.Sprintf("bridge: no handler for script message %q", e.Name)
}

// MalformedMessageError reports a script message whose body is not JSON.
type MalformedMessageError struct {
	Name string
	Body string
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("bridge: script message %q has malformed body %q", e.Name, e.Body)
}
