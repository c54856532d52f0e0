// Package pgsnapshot implements snapshotstore.Store on PostgreSQL. Each
// snapshot is one row holding the JSON form of graphio.Snapshot in a JSONB
// column.
package pgsnapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vk/flowgridgo/internal/graphio"
	"github.com/vk/flowgridgo/internal/snapshotstore"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS flowgrid_snapshots (
    id         UUID PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    nodes      INTEGER NOT NULL DEFAULT 0,
    data       JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Store is a snapshotstore.Store backed by a pgx connection pool.
type Store struct {
	db *pgxpool.Pool
}

var _ snapshotstore.Store = (*Store)(nil)

// New creates a store on an existing pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Connect opens a pool for dsn and makes sure the schema exists.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgsnapshot: connect: %w", err)
	}
	s := New(db)
	if err := s.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.db.Close()
}

// CreateSchema creates the snapshot table if it does not exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("pgsnapshot: create schema: %w", err)
	}
	return nil
}

// DropSchema drops the snapshot table.
func (s *Store) DropSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS flowgrid_snapshots`); err != nil {
		return fmt.Errorf("pgsnapshot: drop schema: %w", err)
	}
	return nil
}

// Put upserts snap under name. The row keeps its id and created_at.
func (s *Store) Put(ctx context.Context, name string, snap *graphio.Snapshot) (snapshotstore.Info, error) {
	if err := snapshotstore.ValidateName(name); err != nil {
		return snapshotstore.Info{}, err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return snapshotstore.Info{}, fmt.Errorf("pgsnapshot: encode %q: %w", name, err)
	}

	var (
		info = snapshotstore.Info{Name: name}
		id   string
	)
	err = s.db.QueryRow(ctx, `
		INSERT INTO flowgrid_snapshots (id, name, nodes, data)
		VALUES ($1::uuid, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET nodes = EXCLUDED.nodes, data = EXCLUDED.data, updated_at = NOW()
		RETURNING id::text, nodes, created_at, updated_at`,
		uuid.NewString(), name, len(snap.Nodes), data,
	).Scan(&id, &info.Nodes, &info.CreatedAt, &info.UpdatedAt)
	if err != nil {
		return snapshotstore.Info{}, fmt.Errorf("pgsnapshot: put %q: %w", name, err)
	}
	if info.ID, err = uuid.Parse(id); err != nil {
		return snapshotstore.Info{}, fmt.Errorf("pgsnapshot: put %q: %w", name, err)
	}
	return info, nil
}

// Get returns the snapshot stored under name.
func (s *Store) Get(ctx context.Context, name string) (*snapshotstore.Record, error) {
	var (
		rec  = snapshotstore.Record{Info: snapshotstore.Info{Name: name}}
		id   string
		data []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT id::text, nodes, created_at, updated_at, data
		FROM flowgrid_snapshots WHERE name = $1`, name,
	).Scan(&id, &rec.Nodes, &rec.CreatedAt, &rec.UpdatedAt, &data)
	if err != nil {
		if isNoRows(err) {
			return nil, snapshotstore.ErrNotFound
		}
		return nil, fmt.Errorf("pgsnapshot: get %q: %w", name, err)
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("pgsnapshot: get %q: %w", name, err)
	}
	var snap graphio.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("pgsnapshot: decode %q: %w", name, err)
	}
	rec.Snapshot = &snap
	return &rec, nil
}

// List returns all snapshots ordered by name.
func (s *Store) List(ctx context.Context) ([]snapshotstore.Info, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, name, nodes, created_at, updated_at
		FROM flowgrid_snapshots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("pgsnapshot: list: %w", err)
	}
	defer rows.Close()

	infos := []snapshotstore.Info{}
	for rows.Next() {
		var (
			info snapshotstore.Info
			id   string
		)
		if err := rows.Scan(&id, &info.Name, &info.Nodes, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pgsnapshot: scan: %w", err)
		}
		if info.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("pgsnapshot: scan: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Delete removes the snapshot stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM flowgrid_snapshots WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("pgsnapshot: delete %q: %w", name, err)
	}
	if ct.RowsAffected() == 0 {
		return snapshotstore.ErrNotFound
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
