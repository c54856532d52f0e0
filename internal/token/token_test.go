package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestCompatible(t *testing.T) {
	testCases := []struct {
		name string
		from cty.Type
		to   cty.Type
		want bool
	}{
		{"identical primitives", cty.Number, cty.Number, true},
		{"different primitives", cty.Number, cty.String, false},
		{"any on input side", cty.String, Any, true},
		{"any on output side", Any, cty.List(cty.Bool), true},
		{"identical collections", cty.Map(cty.Number), cty.Map(cty.Number), true},
		{"different collections", cty.List(cty.Number), cty.Set(cty.Number), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Compatible(tc.from, tc.to))
		})
	}
}

func TestParseType_RoundTrip(t *testing.T) {
	for _, name := range []string{"number", "string", "bool", "any", "list(number)", "map(string)"} {
		t.Run(name, func(t *testing.T) {
			ty, err := ParseType(name)
			require.NoError(t, err)
			assert.Equal(t, name, TypeName(ty))
		})
	}
}

func TestParseType_Errors(t *testing.T) {
	_, err := ParseType("list(")
	assert.Error(t, err)

	_, err = ParseType("banana")
	assert.Error(t, err)
}

func TestNoMessage(t *testing.T) {
	nm := NoMessage()
	assert.True(t, nm.IsNoMessage())
	assert.True(t, (*Token)(nil).IsNoMessage())

	tok := New(cty.NumberIntVal(3)).WithSeq(7)
	assert.False(t, tok.IsNoMessage())
	assert.Equal(t, int64(7), tok.Seq)
	assert.Contains(t, nm.WithSeq(2).String(), "no message")
}
