package worker

import (
	"github.com/zclconf/go-cty/cty"
)

// State is the execution state of a NodeWorker.
type State int32

const (
	Idle State = iota
	Enabled
	Fired
	Processing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Enabled:
		return "ENABLED"
	case Fired:
		return "FIRED"
	case Processing:
		return "PROCESSING"
	default:
		return "UNKNOWN"
	}
}

// NodeState is the persisted, user-editable part of a worker.
type NodeState struct {
	Label         string
	Enabled       bool
	ThreadID      int
	ThreadName    string
	TickFrequency float64
	Params        map[string]cty.Value
}
