// internal/nodeid/uuid_test.go
package nodeid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUID_Hierarchy(t *testing.T) {
	id := MustParse("sub_1:|:relay_0:|:in_2")

	assert.True(t, id.Composite())
	assert.Equal(t, "sub_1", id.RootUUID().String())
	assert.Equal(t, "relay_0:|:in_2", id.NestedUUID().String())
	assert.Equal(t, "sub_1:|:relay_0", id.ParentUUID().String())
	assert.Equal(t, NewSegmentWithIndex("in", 2), id.ID())
	assert.Equal(t, "in", id.TypeName())

	single := MustParse("counter_4")
	assert.False(t, single.Composite())
	assert.Equal(t, single, single.RootUUID())
	assert.True(t, single.NestedUUID().IsEmpty())
	assert.True(t, single.ParentUUID().IsEmpty())
}

func TestUUID_ChildAndJoin(t *testing.T) {
	node := MustParse("counter_0")

	out := node.Child(NewSegmentWithIndex("out", 0))
	assert.Equal(t, "counter_0:|:out_0", out.String())
	assert.Equal(t, node, out.ParentUUID())

	assert.Equal(t, "sub_0:|:counter_0:|:out_0", MustParse("sub_0").Join(out).String())
	assert.Equal(t, out, Empty.Join(out))
	assert.Equal(t, out, out.Join(Empty))
	assert.Equal(t, "x", Empty.Child(NewSegment("x")).String())
}

func TestUUID_Rebase(t *testing.T) {
	from := MustParse("counter_0")
	to := MustParse("counter_7")

	assert.Equal(t, to, from.Rebase(from, to))
	assert.Equal(t, "counter_7:|:out_0", MustParse("counter_0:|:out_0").Rebase(from, to).String())
	// A shared textual prefix is not a path prefix.
	assert.Equal(t, "counter_01", MustParse("counter_01").Rebase(from, to).String())
}

func TestUUID_JSON(t *testing.T) {
	type wrapper struct {
		ID UUID `json:"id"`
	}

	b, err := json.Marshal(wrapper{ID: MustParse("a_0:|:out_1")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a_0:|:out_1"}`, string(b))

	var w wrapper
	require.NoError(t, json.Unmarshal(b, &w))
	assert.Equal(t, "a_0:|:out_1", w.ID.String())

	require.NoError(t, json.Unmarshal([]byte(`{"id":""}`), &w))
	assert.True(t, w.ID.IsEmpty())

	assert.Error(t, json.Unmarshal([]byte(`{"id":"bad id"}`), &w))
}

func TestUUID_MapKey(t *testing.T) {
	m := map[UUID]int{MustParse("a_0"): 1}
	assert.Equal(t, 1, m[MustParse("a_0")])
}
