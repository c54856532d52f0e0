// internal/nodeid/parser_test.go
package nodeid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name             string
		rawID            string
		expectErr        bool
		expectedSegments []Segment
	}{
		{
			name:             "simple node id",
			rawID:            "counter_0",
			expectedSegments: []Segment{NewSegmentWithIndex("counter", 0)},
		},
		{
			name:             "connector id",
			rawID:            "counter_0:|:out_12",
			expectedSegments: []Segment{NewSegmentWithIndex("counter", 0), NewSegmentWithIndex("out", 12)},
		},
		{
			name:             "namespaced type name",
			rawID:            "vision::blur_3",
			expectedSegments: []Segment{NewSegmentWithIndex("vision::blur", 3)},
		},
		{
			name:             "underscores inside the name",
			rawID:            "my_node_2",
			expectedSegments: []Segment{NewSegmentWithIndex("my_node", 2)},
		},
		{
			name:             "no index",
			rawID:            "graph",
			expectedSegments: []Segment{NewSegment("graph")},
		},
		{
			name:             "leading zero stays in the name",
			rawID:            "x_01",
			expectedSegments: []Segment{NewSegment("x_01")},
		},
		{
			name:      "error - empty segment",
			rawID:     "a:|::|:b",
			expectErr: true,
		},
		{
			name:      "error - empty string",
			rawID:     "",
			expectErr: true,
		},
		{
			name:      "error - invalid characters",
			rawID:     "a b_0",
			expectErr: true,
		},
		{
			name:      "error - just dot",
			rawID:     ".",
			expectErr: true,
		},
		{
			name:      "error - trailing colon",
			rawID:     "a:",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := Parse(tc.rawID)

			if tc.expectErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expectedSegments, id.Segments())
			assert.Equal(t, tc.rawID, id.String())
		})
	}
}

func TestPrefixFor(t *testing.T) {
	assert.Equal(t, "counter", PrefixFor("counter"))
	assert.Equal(t, "vision::blur", PrefixFor("vision::blur"))
	assert.Equal(t, "my_node", PrefixFor("my node"))
	assert.Equal(t, "node", PrefixFor("???"))

	_, err := Parse(PrefixFor("a/b c") + "_0")
	assert.NoError(t, err)
}
