package scheduler

import (
	"context"
	"time"

	"github.com/vk/flowgridgo/internal/nodeid"
)

// TaskGenerator is the schedulable unit of one node.
type TaskGenerator interface {
	UUID() nodeid.UUID
	// CanProduce re-checks readiness and reports whether a dispatch would
	// produce work.
	CanProduce() bool
	// Fire claims the work for the calling loop. It returns false when the
	// generator stopped being ready.
	Fire() bool
	// Execute performs the claimed work.
	Execute(ctx context.Context) error
	// NextDeadline returns when the generator wants to be rechecked, or the
	// zero time.
	NextDeadline() time.Time
	// SetWaker installs the callback that wakes the owning group.
	SetWaker(fn func())
	// Clear abandons pending and in-flight work.
	Clear()
	// Reset returns the generator to its initial runtime state.
	Reset()
}
