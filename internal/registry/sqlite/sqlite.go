package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/linch-mind/daemon/internal/connector"
	"github.com/linch-mind/daemon/internal/registry"
)

// DB implements registry.Store for SQLite (modernc.org/sqlite, CGO-free).
// path is a filesystem path; use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS connectors(
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		description TEXT NOT NULL,
		version TEXT NOT NULL,
		production_paths TEXT NOT NULL,
		enabled BOOLEAN NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`)
	return err
}

func (s *DB) SaveDescriptor(ctx context.Context, d connector.Descriptor) error {
	paths, err := json.Marshal(d.ProductionPaths)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO connectors(id, display_name, description, version, production_paths, enabled, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name=excluded.display_name,
			description=excluded.description,
			version=excluded.version,
			production_paths=excluded.production_paths,
			enabled=excluded.enabled,
			updated_at=excluded.updated_at;`,
		d.ID, d.DisplayName, d.Description, d.Version, string(paths), d.Enabled, time.Now().UTC())
	return err
}

func (s *DB) GetDescriptor(ctx context.Context, id string) (connector.Descriptor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, description, version, production_paths, enabled
		FROM connectors WHERE id = ?;`, id)
	return scanDescriptor(row)
}

func (s *DB) ListDescriptors(ctx context.Context) ([]connector.Descriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, description, version, production_paths, enabled
		FROM connectors ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []connector.Descriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *DB) DeleteDescriptor(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM connectors WHERE id = ?;`, id)
	return err
}

func (s *DB) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dst ...any) error
}

func scanDescriptor(row scanner) (connector.Descriptor, error) {
	var d connector.Descriptor
	var paths string
	err := row.Scan(&d.ID, &d.DisplayName, &d.Description, &d.Version, &paths, &d.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return connector.Descriptor{}, registry.ErrNotFound
	}
	if err != nil {
		return connector.Descriptor{}, err
	}
	if paths != "" && paths != "null" {
		if err := json.Unmarshal([]byte(paths), &d.ProductionPaths); err != nil {
			return connector.Descriptor{}, err
		}
	}
	return d, nil
}
