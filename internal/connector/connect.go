package connector

import (
	"fmt"

	"github.com/vk/flowgridgo/internal/token"
)

// CanConnect checks kind and type compatibility of a prospective link.
func CanConnect(from *Output, to *Input) error {
	if !from.Kind().Accepts(to.Kind()) {
		return fmt.Errorf("%w: %s %s cannot feed %s %s", ErrIncompatible, from.Kind(), from.UUID(), to.Kind(), to.UUID())
	}
	if !token.Compatible(from.Type(), to.Type()) {
		return fmt.Errorf("%w: type %s of %s does not match %s of %s",
			ErrIncompatible, token.TypeName(from.Type()), from.UUID(), token.TypeName(to.Type()), to.UUID())
	}
	return nil
}

// Connect links from to to.
func Connect(id int, from *Output, to *Input, active bool) (*Connection, error) {
	if err := CanConnect(from, to); err != nil {
		return nil, err
	}
	c := &Connection{id: id, from: from, to: to}
	c.active.Store(active)
	if err := to.setConnection(c); err != nil {
		return nil, err
	}
	from.addConnection(c)
	return c, nil
}

// Disconnect unlinks c. A connection that is still in flight counts as
// consumed for its producer.
func Disconnect(c *Connection) {
	c.to.clearConnection(c)
	c.from.removeConnection(c)
	if t := c.from.owner.Load(); t != nil {
		t.connectionRemoved(c)
	}
	c.reset()
}
