package worker

import (
	"context"

	"github.com/vk/flowgridgo/internal/token"
)

// Node is the user logic wrapped by a NodeWorker.
type Node interface {
	// Setup declares connectors and parameters. It is called exactly once,
	// before the worker is scheduled.
	Setup(s *Setup) error
	// Process runs once per cycle, after the inputs were forwarded.
	Process(ctx context.Context) error
}

// AsyncNode is a node whose processing completes on another goroutine. The
// worker stays PROCESSING until done is called.
type AsyncNode interface {
	Node
	ProcessAsync(ctx context.Context, done func(error))
}

// Resetter is implemented by nodes holding state that must be dropped when
// the graph is reset.
type Resetter interface {
	Reset()
}

// Destroyer is implemented by nodes owning resources released on removal.
type Destroyer interface {
	Destroy()
}

// SlotHandler runs when a trigger token arrives at a slot.
type SlotHandler func(ctx context.Context, t *token.Token) error
