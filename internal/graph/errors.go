package graph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vk/flowgridgo/internal/nodeid"
)

var (
	// ErrNotFound is returned by hard lookups of unknown UUIDs.
	ErrNotFound = errors.New("graph: not found")
	// ErrStructural marks edits that would leave the graph inconsistent.
	ErrStructural = errors.New("graph: structural error")
)

// StructuralError describes a rejected structural edit.
type StructuralError struct {
	UUID   nodeid.UUID
	Reason string
	Err    error
}

func (e *StructuralError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.UUID, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.UUID, e.Reason)
}

// Unwrap lets errors.Is match both ErrStructural and the cause.
func (e *StructuralError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStructural}
	}
	return []error{ErrStructural, e.Err}
}

func structural(id nodeid.UUID, reason string, err error) error {
	return &StructuralError{UUID: id, Reason: reason, Err: err}
}

func notFound(kind string, id nodeid.UUID) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// Notification is a user-visible diagnostic. It never drives control flow.
type Notification struct {
	Source  nodeid.UUID
	Level   slog.Level
	Message string
}
