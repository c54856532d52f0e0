package connector

import (
	"errors"
	"fmt"
)

var (
	// ErrIncompatible is returned when two connectors cannot be linked.
	ErrIncompatible = errors.New("connector: incompatible connectors")
	// ErrAlreadyConnected is returned when an input already has a connection.
	ErrAlreadyConnected = errors.New("connector: input already connected")
)

// InvariantViolation is the panic value for broken handshake preconditions.
type InvariantViolation struct {
	Op     string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Detail)
}

// IsInvariantViolation reports whether a recovered panic value is fatal and
// must be re-raised.
func IsInvariantViolation(r any) bool {
	_, ok := r.(*InvariantViolation)
	return ok
}

func violate(op, format string, args ...any) {
	panic(&InvariantViolation{Op: op, Detail: fmt.Sprintf(format, args...)})
}
