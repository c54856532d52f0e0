package inmemorysnapshot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/graphio"
	"github.com/vk/flowgridgo/internal/nodeid"
	"github.com/vk/flowgridgo/internal/snapshotstore"
)

func snapshotWith(n int) *graphio.Snapshot {
	snap := &graphio.Snapshot{}
	for i := range n {
		snap.Nodes = append(snap.Nodes, graphio.Node{
			UUID: nodeid.MustParse(fmt.Sprintf("source_%d", i)),
			Type: "source",
		})
	}
	return snap
}

func TestPutAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, snapshotstore.ErrNotFound)

	info, err := s.Put(ctx, "demo", snapshotWith(2))
	require.NoError(t, err)
	assert.Equal(t, "demo", info.Name)
	assert.Equal(t, 2, info.Nodes)

	rec, err := s.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, info, rec.Info)
	assert.Len(t, rec.Snapshot.Nodes, 2)
}

func TestPutReplacesKeepingIdentity(t *testing.T) {
	s := New()
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	first, err := s.Put(ctx, "demo", snapshotWith(1))
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	second, err := s.Put(ctx, "demo", snapshotWith(3))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, clock, second.UpdatedAt)
	assert.Equal(t, 3, second.Nodes)
}

func TestListAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, name := range []string{"b", "c", "a"} {
		_, err := s.Put(ctx, name, snapshotWith(0))
		require.NoError(t, err)
	}

	infos, err := s.List(ctx)
	require.NoError(t, err)
	var names []string
	for _, i := range infos {
		names = append(names, i.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)

	require.NoError(t, s.Delete(ctx, "b"))
	assert.ErrorIs(t, s.Delete(ctx, "b"), snapshotstore.ErrNotFound)
	infos, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestConcurrentPut(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Put(ctx, fmt.Sprintf("snap-%d", i%5), snapshotWith(i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	infos, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 5)
}

func TestPutRejectsInvalidName(t *testing.T) {
	s := New()
	for _, name := range []string{"", "../escape", ".hidden", "with space"} {
		_, err := s.Put(context.Background(), name, snapshotWith(1))
		assert.ErrorIs(t, err, snapshotstore.ErrInvalidName, name)
	}
}
