package graphio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vk/flowgridgo/internal/nodeid"
)

func TestRenameLegacy(t *testing.T) {
	tests := map[string]string{
		"timer_0:|:trigger_2":           "timer_0:|:event_2",
		"timer_0:|:out_0":               "timer_0:|:out_0",
		"group_1:|:timer_0:|:trigger_0": "group_1:|:timer_0:|:event_0",
	}
	for in, want := range tests {
		assert.Equal(t, want, renameLegacy(nodeid.MustParse(in)).String(), in)
	}
}
