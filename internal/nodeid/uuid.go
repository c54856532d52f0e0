// internal/nodeid/uuid.go
package nodeid

import "strings"

// UUID is an immutable, hierarchical identifier. The zero value is the empty id.
type UUID struct {
	raw string
}

// Empty is the zero UUID.
var Empty = UUID{}

// String returns the canonical string form.
func (u UUID) String() string {
	return u.raw
}

// IsEmpty reports whether u is the zero UUID.
func (u UUID) IsEmpty() bool {
	return u.raw == ""
}

// Equal reports whether two ids are identical.
func (u UUID) Equal(other UUID) bool {
	return u.raw == other.raw
}

// Composite reports whether u spans more than one segment.
func (u UUID) Composite() bool {
	return strings.Contains(u.raw, Separator)
}

// Segments returns the parsed segments of u.
func (u UUID) Segments() []Segment {
	if u.raw == "" {
		return nil
	}
	parts := strings.Split(u.raw, Separator)
	out := make([]Segment, 0, len(parts))
	for _, p := range parts {
		out = append(out, splitSegment(p))
	}
	return out
}

// RootUUID returns the first segment of u.
func (u UUID) RootUUID() UUID {
	root, _, _ := strings.Cut(u.raw, Separator)
	return UUID{raw: root}
}

// NestedUUID returns everything after the root segment, or the empty id for
// a single-segment UUID.
func (u UUID) NestedUUID() UUID {
	_, rest, _ := strings.Cut(u.raw, Separator)
	return UUID{raw: rest}
}

// ParentUUID drops the last segment. For a connector this is its node.
func (u UUID) ParentUUID() UUID {
	i := strings.LastIndex(u.raw, Separator)
	if i < 0 {
		return Empty
	}
	return UUID{raw: u.raw[:i]}
}

// ID returns the last segment of u.
func (u UUID) ID() Segment {
	last := u.raw
	if i := strings.LastIndex(u.raw, Separator); i >= 0 {
		last = u.raw[i+len(Separator):]
	}
	return splitSegment(last)
}

// TypeName returns the name part of the last segment, which is the prefix
// the id was generated from.
func (u UUID) TypeName() string {
	return u.ID().Name
}

// Child appends a segment to u.
func (u UUID) Child(s Segment) UUID {
	if u.raw == "" {
		return UUID{raw: s.String()}
	}
	return UUID{raw: u.raw + Separator + s.String()}
}

// Join appends all segments of other to u.
func (u UUID) Join(other UUID) UUID {
	switch {
	case u.raw == "":
		return other
	case other.raw == "":
		return u
	}
	return UUID{raw: u.raw + Separator + other.raw}
}

// Rebase replaces the leading from prefix of u with to. Ids outside from are
// returned unchanged.
func (u UUID) Rebase(from, to UUID) UUID {
	if u.raw == from.raw {
		return to
	}
	if strings.HasPrefix(u.raw, from.raw+Separator) {
		return to.Join(UUID{raw: u.raw[len(from.raw)+len(Separator):]})
	}
	return u
}

// MarshalText implements encoding.TextMarshaler.
func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.raw), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The empty string
// decodes to the empty id.
func (u *UUID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*u = Empty
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
