package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linch-mind/daemon/internal/connector"
)

func TestNewFromDSNBarePathIsSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	store, err := NewFromDSN(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.SaveDescriptor(ctx, connector.Descriptor{ID: "fs"}))
	got, err := store.GetDescriptor(ctx, "fs")
	require.NoError(t, err)
	assert.Equal(t, "fs", got.ID)
}

func TestNewFromDSNSQLiteScheme(t *testing.T) {
	store, err := NewFromDSN("sqlite://" + filepath.Join(t.TempDir(), "r.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	assert.NoError(t, store.EnsureSchema(context.Background()))
}

func TestNewFromDSNEmpty(t *testing.T) {
	_, err := NewFromDSN("")
	assert.Error(t, err)
}
