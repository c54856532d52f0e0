// Package inmemorysnapshot provides an ephemeral, thread-safe, in-memory
// implementation of the snapshotstore.Store interface.
//
// Snapshots live as long as the process. The store is the default when no
// PostgreSQL DSN is configured, and the one used by tests.
package inmemorysnapshot

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/flowgridgo/internal/graphio"
	"github.com/vk/flowgridgo/internal/snapshotstore"
)

// Store keeps records in a sync.Map keyed by snapshot name. Records are
// replaced as a whole, never mutated in place.
type Store struct {
	records sync.Map // Key: name, Value: *snapshotstore.Record

	// mu serializes Put so that concurrent writers of one name agree on
	// the record identity.
	mu  sync.Mutex
	now func() time.Time
}

var _ snapshotstore.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{now: time.Now}
}

// Put stores snap under name.
func (s *Store) Put(_ context.Context, name string, snap *graphio.Snapshot) (snapshotstore.Info, error) {
	if err := snapshotstore.ValidateName(name); err != nil {
		return snapshotstore.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	info := snapshotstore.Info{ID: uuid.New(), Name: name, CreatedAt: now}
	if old, ok := s.records.Load(name); ok {
		prev := old.(*snapshotstore.Record).Info
		info.ID, info.CreatedAt = prev.ID, prev.CreatedAt
	}
	info.UpdatedAt = now
	info.Nodes = len(snap.Nodes)

	s.records.Store(name, &snapshotstore.Record{Info: info, Snapshot: snap})
	return info, nil
}

// Get returns the snapshot stored under name.
func (s *Store) Get(_ context.Context, name string) (*snapshotstore.Record, error) {
	rec, ok := s.records.Load(name)
	if !ok {
		return nil, snapshotstore.ErrNotFound
	}
	return rec.(*snapshotstore.Record), nil
}

// List returns all snapshots ordered by name.
func (s *Store) List(context.Context) ([]snapshotstore.Info, error) {
	infos := []snapshotstore.Info{}
	s.records.Range(func(_, v any) bool {
		infos = append(infos, v.(*snapshotstore.Record).Info)
		return true
	})
	slices.SortFunc(infos, func(a, b snapshotstore.Info) int { return strings.Compare(a.Name, b.Name) })
	return infos, nil
}

// Delete removes the snapshot stored under name.
func (s *Store) Delete(_ context.Context, name string) error {
	if _, ok := s.records.LoadAndDelete(name); !ok {
		return snapshotstore.ErrNotFound
	}
	return nil
}
