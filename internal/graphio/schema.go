package graphio

import (
	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/nodeid"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Connection kinds as persisted.
const (
	KindDefault = "default"
	KindActive  = "active"
)

// Snapshot is the persisted form of one graph level.
type Snapshot struct {
	UUIDMap     map[string]int `json:"uuid_map,omitempty"`
	Threads     []Thread       `json:"threads,omitempty"`
	Nodes       []Node         `json:"nodes"`
	Connections []Connection   `json:"connections"`
	Fulcrums    []Fulcrums     `json:"fulcrums,omitempty"`
}

// Thread is a user-created thread group.
type Thread struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Node struct {
	UUID  nodeid.UUID     `json:"uuid"`
	Type  string          `json:"type"`
	Pos   connector.Point `json:"pos"`
	State State           `json:"state"`
}

// State mirrors worker.NodeState with JSON friendly parameter values.
type State struct {
	Label         string                             `json:"label,omitempty"`
	Enabled       bool                               `json:"enabled"`
	ThreadID      int                                `json:"thread_id"`
	ThreadName    string                             `json:"thread_name,omitempty"`
	TickFrequency float64                            `json:"tick_frequency,omitempty"`
	Params        map[string]ctyjson.SimpleJSONValue `json:"params,omitempty"`
}

// Connection lists every target of one source connector.
type Connection struct {
	From    nodeid.UUID `json:"from"`
	Targets []Target    `json:"targets"`
}

type Target struct {
	To   nodeid.UUID `json:"to"`
	Kind string      `json:"kind"`
}

// Fulcrums holds the waypoints of one connection.
type Fulcrums struct {
	From     nodeid.UUID         `json:"from"`
	To       nodeid.UUID         `json:"to"`
	Fulcrums []connector.Fulcrum `json:"fulcrums"`
}

// Report summarizes a load.
type Report struct {
	Nodes       int
	Connections int
	// Skipped describes every entry that was not applied.
	Skipped []string
	// Mapping holds the id each loaded node received. Identity unless the
	// snapshot was pasted.
	Mapping map[nodeid.UUID]nodeid.UUID
}
