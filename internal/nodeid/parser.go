// internal/nodeid/parser.go
package nodeid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// nameRegex validates the name part of a segment, e.g. `out` or `vision::blur`.
var nameRegex = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9_:.\-]*[A-Za-z0-9_.\-])?$`)

// isValidSegmentName checks for undesirable but technically valid names.
func isValidSegmentName(name string) bool {
	if name == "." || name == ".." || name == "-" {
		return false
	}
	return nameRegex.MatchString(name)
}

// splitSegment separates a trailing `_<digits>` index from the segment name.
// Indices with leading zeros stay part of the name so that String round-trips.
func splitSegment(s string) Segment {
	i := strings.LastIndexByte(s, '_')
	if i <= 0 || i == len(s)-1 {
		return NewSegment(s)
	}
	digits := s[i+1:]
	if len(digits) > 1 && digits[0] == '0' {
		return NewSegment(s)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return NewSegment(s)
	}
	return NewSegmentWithIndex(s[:i], n)
}

// Parse creates a UUID from its canonical string representation.
func Parse(rawID string) (UUID, error) {
	if rawID == "" {
		return Empty, fmt.Errorf("identifier cannot be empty")
	}

	for _, part := range strings.Split(rawID, Separator) {
		if part == "" {
			return Empty, fmt.Errorf("identifier %q contains empty segment", rawID)
		}
		seg := splitSegment(part)
		if !isValidSegmentName(seg.Name) {
			return Empty, fmt.Errorf("invalid segment name: %q", seg.Name)
		}
	}
	return UUID{raw: rawID}, nil
}

// MustParse is like Parse but panics on malformed input. Intended for tests
// and constants.
func MustParse(rawID string) UUID {
	u, err := Parse(rawID)
	if err != nil {
		panic(err)
	}
	return u
}

// PrefixFor turns a node type name into a valid generation prefix.
func PrefixFor(typeName string) string {
	var sb strings.Builder
	for _, r := range typeName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '.', r == '-', r == ':':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	prefix := strings.Trim(sb.String(), "_:.-")
	if prefix == "" {
		return "node"
	}
	return prefix
}
