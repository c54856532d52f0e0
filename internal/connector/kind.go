package connector

// Kind tags a connector with its role.
type Kind int

const (
	DataInput Kind = iota
	DataOutput
	Event
	Slot
)

func (k Kind) String() string {
	switch k {
	case DataInput:
		return "input"
	case DataOutput:
		return "output"
	case Event:
		return "event"
	case Slot:
		return "slot"
	default:
		return "unknown"
	}
}

// IsInput reports whether the connector receives tokens.
func (k Kind) IsInput() bool {
	switch k {
	case DataInput, Slot:
		return true
	}
	return false
}

// IsOutput reports whether the connector emits tokens.
func (k Kind) IsOutput() bool {
	switch k {
	case DataOutput, Event:
		return true
	}
	return false
}

// Prefix is the id prefix used when generating connector UUIDs.
func (k Kind) Prefix() string {
	switch k {
	case DataInput:
		return "in"
	case DataOutput:
		return "out"
	case Event:
		return "event"
	case Slot:
		return "slot"
	default:
		return "connector"
	}
}

// Accepts reports whether an output of kind k may be linked to an input of
// kind to.
func (k Kind) Accepts(to Kind) bool {
	switch k {
	case DataOutput:
		return to == DataInput
	case Event:
		return to == Slot
	}
	return false
}
