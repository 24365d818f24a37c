package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linch-mind/daemon/internal/connector"
	"github.com/linch-mind/daemon/internal/registry"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.EnsureSchema(context.Background()))
	return db
}

func TestSaveAndGetDescriptor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	d := connector.Descriptor{
		ID:          "filesystem",
		DisplayName: "Filesystem Watcher",
		Description: "Watches local directories",
		Version:     "1.2.0",
		ProductionPaths: map[string]string{
			"linux":   "bin/linch-mind-filesystem",
			"windows": "bin/linch-mind-filesystem.exe",
		},
		Enabled: true,
	}
	require.NoError(t, db.SaveDescriptor(ctx, d))

	got, err := db.GetDescriptor(ctx, "filesystem")
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestGetDescriptorNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetDescriptor(context.Background(), "ghost")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestSaveDescriptorUpsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveDescriptor(ctx, connector.Descriptor{ID: "fs", Version: "1.0.0"}))
	require.NoError(t, db.SaveDescriptor(ctx, connector.Descriptor{ID: "fs", Version: "1.1.0", Enabled: true}))

	got, err := db.GetDescriptor(ctx, "fs")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", got.Version)
	assert.True(t, got.Enabled)

	list, err := db.ListDescriptors(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListDescriptorsSorted(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, id := range []string{"zeta", "alpha"} {
		require.NoError(t, db.SaveDescriptor(ctx, connector.Descriptor{ID: id}))
	}

	list, err := db.ListDescriptors(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].ID)
	assert.Equal(t, "zeta", list[1].ID)
}

func TestDeleteDescriptor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveDescriptor(ctx, connector.Descriptor{ID: "fs"}))
	require.NoError(t, db.DeleteDescriptor(ctx, "fs"))

	_, err := db.GetDescriptor(ctx, "fs")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	// deleting a missing row is not an error
	assert.NoError(t, db.DeleteDescriptor(ctx, "fs"))
}

func TestEmptyPathRejected(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
