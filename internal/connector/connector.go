package connector

import (
	"sync/atomic"

	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// Endpoint is the view of a connector shared by inputs and outputs.
type Endpoint interface {
	UUID() nodeid.UUID
	Kind() Kind
	Label() string
	Type() cty.Type
	Enabled() bool
	IsConnected() bool
	Connections() []*Connection
}

// Connector holds the fields common to every endpoint.
type Connector struct {
	uuid    nodeid.UUID
	kind    Kind
	label   string
	typ     cty.Type
	enabled atomic.Bool
}

func (c *Connector) init(id nodeid.UUID, kind Kind, label string, typ cty.Type) {
	c.uuid = id
	c.kind = kind
	c.label = label
	c.typ = typ
	c.enabled.Store(true)
}

func (c *Connector) UUID() nodeid.UUID { return c.uuid }
func (c *Connector) Kind() Kind        { return c.kind }
func (c *Connector) Label() string     { return c.label }
func (c *Connector) Type() cty.Type    { return c.typ }

// Owner is the UUID of the node the connector belongs to.
func (c *Connector) Owner() nodeid.UUID { return c.uuid.ParentUUID() }

// Enabled reports whether the connector takes part in the handshake.
func (c *Connector) Enabled() bool { return c.enabled.Load() }

// SetEnabled toggles participation in the handshake.
func (c *Connector) SetEnabled(enabled bool) { c.enabled.Store(enabled) }

// Point is a 2D position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Fulcrum is a visual waypoint on a connection. It is persisted and ignored
// by execution.
type Fulcrum struct {
	Pos  Point `json:"pos"`
	In   Point `json:"in"`
	Out  Point `json:"out"`
	Type int   `json:"type"`
}
