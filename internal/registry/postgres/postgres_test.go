package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/linch-mind/daemon/internal/connector"
	"github.com/linch-mind/daemon/internal/registry"
)

// startPostgresContainer starts a PostgreSQL container and returns a pgx DSN.
// It skips the test when Docker is unavailable.
func startPostgresContainer(t *testing.T) (dsn string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	// testcontainers panics (rather than returning an error) when no Docker
	// host can be detected at all; translate that into the same skip.
	defer func() {
		if r := recover(); r != nil {
			cancel()
			t.Skipf("Failed to start PostgreSQL container: %v", r)
		}
	}()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	if err != nil {
		cancel()
		t.Skipf("Failed to start PostgreSQL container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get host info: %v", err)
		return "", nil
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get mapped port: %v", err)
		return "", nil
	}

	dsn = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}
	return dsn, terminate
}

func waitForPostgres(t *testing.T, dsn string) {
	deadline := time.Now().Add(45 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				_ = db.Close()
				cancel()
				return
			}
			_ = db.Close()
		}
		cancel()
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready in time: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestPostgresRegistry(t *testing.T) {
	dsn, terminate := startPostgresContainer(t)
	waitForPostgres(t, dsn)
	defer func() {
		if terminate != nil {
			terminate()
		}
	}()

	store, err := New(dsn)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))

	d := connector.Descriptor{
		ID:              "filesystem",
		DisplayName:     "Filesystem Watcher",
		Version:         "1.0.0",
		ProductionPaths: map[string]string{"linux": "bin/linch-mind-filesystem"},
		Enabled:         true,
	}
	require.NoError(t, store.SaveDescriptor(ctx, d))

	got, err := store.GetDescriptor(ctx, "filesystem")
	require.NoError(t, err)
	assert.Equal(t, d, got)

	// upsert on version bump
	d.Version = "1.1.0"
	require.NoError(t, store.SaveDescriptor(ctx, d))
	got, err = store.GetDescriptor(ctx, "filesystem")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", got.Version)

	list, err := store.ListDescriptors(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteDescriptor(ctx, "filesystem"))
	_, err = store.GetDescriptor(ctx, "filesystem")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}
