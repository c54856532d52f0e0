// Package filesnapshot implements snapshotstore.Store on a directory. Each
// snapshot is one JSON file named after it, so snapshots survive restarts
// without a database and can be checked into version control.
package filesnapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/flowgridgo/internal/fsutil"
	"github.com/vk/flowgridgo/internal/graphio"
	"github.com/vk/flowgridgo/internal/snapshotstore"
)

const ext = ".snapshot.json"

// Store writes records as <dir>/<name>.snapshot.json. Writes go through a
// temporary file and a rename, so readers never see a partial record.
type Store struct {
	dir string

	// mu serializes writers; reads rely on the atomic rename.
	mu  sync.Mutex
	now func() time.Time
}

var _ snapshotstore.Store = (*Store)(nil)

// New opens dir, creating it when missing.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filesnapshot: create %s: %w", dir, err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+ext)
}

func (s *Store) read(name string) (*snapshotstore.Record, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", snapshotstore.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("filesnapshot: read %q: %w", name, err)
	}
	var rec snapshotstore.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("filesnapshot: decode %q: %w", name, err)
	}
	if rec.Snapshot == nil {
		rec.Snapshot = &graphio.Snapshot{}
	}
	return &rec, nil
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
	if old, err := s.read(name); err == nil {
		info.ID, info.CreatedAt = old.ID, old.CreatedAt
	} else if !errors.Is(err, snapshotstore.ErrNotFound) {
		return snapshotstore.Info{}, err
	}
	info.UpdatedAt = now
	info.Nodes = len(snap.Nodes)

	data, err := json.MarshalIndent(&snapshotstore.Record{Info: info, Snapshot: snap}, "", "  ")
	if err != nil {
		return snapshotstore.Info{}, fmt.Errorf("filesnapshot: encode %q: %w", name, err)
	}
	if err := s.writeAtomic(s.path(name), data); err != nil {
		return snapshotstore.Info{}, fmt.Errorf("filesnapshot: write %q: %w", name, err)
	}
	return info, nil
}

func (s *Store) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Get returns the snapshot stored under name.
func (s *Store) Get(_ context.Context, name string) (*snapshotstore.Record, error) {
	if err := snapshotstore.ValidateName(name); err != nil {
		return nil, err
	}
	return s.read(name)
}

// List returns every stored snapshot ordered by name. Files that fail to
// decode are skipped.
func (s *Store) List(context.Context) ([]snapshotstore.Info, error) {
	files, err := fsutil.FindFilesByExtension(s.dir, ext)
	if err != nil {
		return nil, fmt.Errorf("filesnapshot: list: %w", err)
	}
	out := make([]snapshotstore.Info, 0, len(files))
	for _, f := range files {
		if filepath.Dir(f) != filepath.Clean(s.dir) {
			continue
		}
		rec, err := s.read(strings.TrimSuffix(filepath.Base(f), ext))
		if err != nil {
			continue
		}
		out = append(out, rec.Info)
	}
	slices.SortFunc(out, func(a, b snapshotstore.Info) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Delete removes the snapshot stored under name.
func (s *Store) Delete(_ context.Context, name string) error {
	if err := snapshotstore.ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %q", snapshotstore.ErrNotFound, name)
	}
	return err
}
