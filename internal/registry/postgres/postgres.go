package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/linch-mind/daemon/internal/connector"
	"github.com/linch-mind/daemon/internal/registry"
)

// DB implements registry.Store for PostgreSQL via the pgx stdlib driver.
type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS connectors(
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		description TEXT NOT NULL,
		version TEXT NOT NULL,
		production_paths JSONB NOT NULL,
		enabled BOOLEAN NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`)
	return err
}

func (p *DB) SaveDescriptor(ctx context.Context, d connector.Descriptor) error {
	paths, err := json.Marshal(d.ProductionPaths)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO connectors(id, display_name, description, version, production_paths, enabled, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT(id) DO UPDATE SET
			display_name=EXCLUDED.display_name,
			description=EXCLUDED.description,
			version=EXCLUDED.version,
			production_paths=EXCLUDED.production_paths,
			enabled=EXCLUDED.enabled,
			updated_at=EXCLUDED.updated_at;`,
		d.ID, d.DisplayName, d.Description, d.Version, string(paths), d.Enabled, time.Now().UTC())
	return err
}

func (p *DB) GetDescriptor(ctx context.Context, id string) (connector.Descriptor, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, display_name, description, version, production_paths, enabled
		FROM connectors WHERE id = $1;`, id)
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

func (p *DB) ListDescriptors(ctx context.Context) ([]connector.Descriptor, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, display_name, description, version, production_paths, enabled
		FROM connectors ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []connector.Descriptor
	for rows.Next() {
		var d connector.Descriptor
		var paths string
		if err := rows.Scan(&d.ID, &d.DisplayName, &d.Description, &d.Version, &paths, &d.Enabled); err != nil {
			return nil, err
		}
		if paths != "" && paths != "null" {
			if err := json.Unmarshal([]byte(paths), &d.ProductionPaths); err != nil {
				return nil, err
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *DB) DeleteDescriptor(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM connectors WHERE id = $1;`, id)
	return err
}

func (p *DB) Close() error { return p.db.Close() }
