package scheduler

import (
	"context"
	"time"

	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/worker"
)

// NodeRunner adapts a NodeWorker to TaskGenerator.
type NodeRunner struct {
	w *worker.NodeWorker
}

// NewNodeRunner wraps w.
func NewNodeRunner(w *worker.NodeWorker) *NodeRunner {
	return &NodeRunner{w: w}
}

// Worker returns the wrapped worker.
func (r *NodeRunner) Worker() *worker.NodeWorker { return r.w }

func (r *NodeRunner) UUID() nodeid.UUID                 { return r.w.UUID() }
func (r *NodeRunner) CanProduce() bool                  { return r.w.CheckTransitions() }
func (r *NodeRunner) Fire() bool                        { return r.w.Fire() }
func (r *NodeRunner) Execute(ctx context.Context) error { return r.w.Execute(ctx) }
func (r *NodeRunner) NextDeadline() time.Time           { return r.w.NextDeadline() }
func (r *NodeRunner) SetWaker(fn func())                { r.w.SetWaker(fn) }
func (r *NodeRunner) Clear()                            { r.w.KillExecution() }
func (r *NodeRunner) Reset()                            { r.w.Reset() }
