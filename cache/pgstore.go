package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/m-mizutani/goerr/v2"
)

// DB is the subset of pgxpool.Pool used by PGStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS snapshots (
	name       text PRIMARY KEY,
	body       jsonb NOT NULL,
	written_at timestamptz NOT NULL
)`

// PGStore implements the Store interface on a Postgres table. Each save is a
// single upsert, so readers see either the old or the new snapshot.
type PGStore struct {
	db  DB
	now func() time.Time
}

// NewPGStore creates a Postgres-backed store. Call Migrate once before use.
func NewPGStore(db DB, opts ...Option) *PGStore {
	o := buildOptions(opts)
	return &PGStore{db: db, now: o.now}
}

// Migrate creates the snapshots table if it does not exist.
func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createSnapshotsTable); err != nil {
		return goerr.Wrap(err, "create snapshots table")
	}
	return nil
}

// Read implements Reader interface
func (s *PGStore) Read(ctx context.Context, name string) (*Entry, error) {
	var (
		body      []byte
		writtenAt time.Time
	)
	err := s.db.QueryRow(ctx,
		`SELECT body, written_at FROM snapshots WHERE name = $1`, name,
	).Scan(&body, &writtenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, goerr.Wrap(err, "read snapshot", goerr.V("name", name))
	}
	if !json.Valid(body) {
		return nil, goerr.Wrap(ErrCorrupt, "decode snapshot", goerr.V("name", name))
	}

	return &Entry{Name: name, WrittenAt: writtenAt.UTC(), Body: body}, nil
}

// WrittenAt implements Stamper interface
func (s *PGStore) WrittenAt(ctx context.Context, name string) (time.Time, error) {
	var writtenAt time.Time
	err := s.db.QueryRow(ctx,
		`SELECT written_at FROM snapshots WHERE name = $1`, name,
	).Scan(&writtenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, goerr.Wrap(err, "read snapshot time", goerr.V("name", name))
	}
	return writtenAt.UTC(), nil
}

// Save implements Writer interface
func (s *PGStore) Save(ctx context.Context, name string, value any) error {
	if name == "" {
		return goerr.New("snapshot name is empty")
	}
	body, err := json.Marshal(value)
	if err != nil {
		return goerr.Wrap(err, "marshal snapshot", goerr.V("name", name))
	}

	_, err = s.db.Exec(ctx, `
INSERT INTO snapshots (name, body, written_at) VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, written_at = EXCLUDED.written_at`,
		name, json.RawMessage(body), s.now().UTC())
	if err != nil {
		return goerr.Wrap(err, "upsert snapshot", goerr.V("name", name))
	}
	return nil
}

// Delete implements Writer interface
func (s *PGStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM snapshots WHERE name = $1`, name); err != nil {
		return goerr.Wrap(err, "delete snapshot", goerr.V("name", name))
	}
	return nil
}
