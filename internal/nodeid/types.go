// internal/nodeid/types.go
package nodeid

import "strconv"

// Separator joins the segments of a composite UUID.
const Separator = ":|:"

// Segment is a single component of a UUID path, e.g. `out` or `out_3`.
type Segment struct {
	Name  string
	Index int // -1 indicates no index is present.
}

// NewSegment creates a new segment without an index.
func NewSegment(name string) Segment {
	return Segment{Name: name, Index: -1}
}

// NewSegmentWithIndex creates a new segment that includes an index.
func NewSegmentWithIndex(name string, index int) Segment {
	return Segment{Name: name, Index: index}
}

// HasIndex returns true if the segment has an explicit index.
func (s Segment) HasIndex() bool {
	return s.Index != -1
}

// String renders the segment in its canonical `name_index` form.
func (s Segment) String() string {
	if !s.HasIndex() {
		return s.Name
	}
	return s.Name + "_" + strconv.Itoa(s.Index)
}
