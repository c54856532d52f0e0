package worker

import (
	"fmt"

	"github.com/vk/flowgridgo/internal/nodeid"
)

// ExecutionError is an error raised by node logic during processing.
type ExecutionError struct {
	UUID nodeid.UUID
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("node %s: %v", e.UUID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from panicking node logic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// ErrorLevel is the severity of a node's error flag.
type ErrorLevel int

const (
	ErrorNone ErrorLevel = iota
	// ErrorWarning is shown to the user but keeps the node scheduled.
	ErrorWarning
	// ErrorError disables scheduling until the flag is cleared.
	ErrorError
)

func (l ErrorLevel) String() string {
	switch l {
	case ErrorWarning:
		return "warning"
	case ErrorError:
		return "error"
	default:
		return "none"
	}
}
