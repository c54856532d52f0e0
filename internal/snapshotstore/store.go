// Package snapshotstore defines the interface for keeping named graph
// snapshots outside the running session.
//
// # Lifecycle and Usage
//
// A snapshot store outlives sessions. The HTTP surface saves the current
// top-level graph under a name and later loads it back into the same or a
// fresh session:
//  1. graphio.Save captures the facade into a Snapshot
//  2. Put stores it under a name, replacing an older snapshot of that name
//  3. Get returns the latest snapshot for the name
//  4. graphio.Load applies it and the dispatcher marks a savepoint
//
// # Thread-Safety Requirements
//
// Implementations MUST be safe for concurrent use. API handlers call the store
// from fiber's request goroutines.
//
// See internal/inmemorysnapshot for the in-process implementation,
// internal/filesnapshot for the directory-backed one and internal/pgsnapshot
// for the PostgreSQL one.
package snapshotstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/vk/flowgridgo/internal/graphio"
)

// ErrNotFound is returned when no snapshot has the requested name.
var ErrNotFound = errors.New("snapshotstore: snapshot not found")

// ErrInvalidName is returned for names that ValidateName rejects.
var ErrInvalidName = errors.New("snapshotstore: invalid snapshot name")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateName accepts 1 to 128 letters, digits, '.', '_' and '-', starting
// with a letter or digit. Every store applies it so names stay portable
// between backends.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Info describes a stored snapshot without its content.
type Info struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Nodes     int       `json:"nodes"`
}

// Record is a stored snapshot.
type Record struct {
	Info
	Snapshot *graphio.Snapshot `json:"snapshot"`
}

// Store keeps snapshots by name.
type Store interface {
	// Put stores snap under name. An existing snapshot of the same name is
	// replaced and keeps its ID and creation time.
	Put(ctx context.Context, name string, snap *graphio.Snapshot) (Info, error)

	// Get returns the snapshot stored under name, or ErrNotFound.
	Get(ctx context.Context, name string) (*Record, error)

	// List returns every stored snapshot ordered by name.
	List(ctx context.Context) ([]Info, error)

	// Delete removes the snapshot stored under name. Deleting a missing
	// name returns ErrNotFound.
	Delete(ctx context.Context, name string) error
}
