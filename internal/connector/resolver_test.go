//go:build !windows

package connector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
}

func TestResolveProductionPathFirst(t *testing.T) {
	base := t.TempDir()
	prod := filepath.Join(base, "filesystem", "dist", "watcher")
	writeExecutable(t, prod)
	// a pattern match also exists; production path must win
	writeExecutable(t, filepath.Join(base, "filesystem", "bin", "linch-mind-filesystem"))

	r := NewResolver([]string{base}, nil)
	got, ok := r.Resolve(Descriptor{
		ID:              "filesystem",
		ProductionPaths: map[string]string{CurrentPlatform(): filepath.Join("dist", "watcher")},
	})
	require.True(t, ok)
	assert.Equal(t, prod, got)
}

func TestResolveBinReleaseLayout(t *testing.T) {
	base := t.TempDir()
	want := filepath.Join(base, "filesystem", "bin", "release", "linch-mind-filesystem")
	writeExecutable(t, want)

	r := NewResolver([]string{base}, nil)
	got, ok := r.Resolve(Descriptor{ID: "filesystem"})
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestResolveUnderscoreNormalization(t *testing.T) {
	base := t.TempDir()
	want := filepath.Join(base, "browser_history", "bin", "linch-mind-browser-history")
	writeExecutable(t, want)

	r := NewResolver([]string{base}, nil)
	got, ok := r.Resolve(Descriptor{ID: "browser_history"})
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestResolveBaseDirPriority(t *testing.T) {
	installed := t.TempDir()
	dev := t.TempDir()
	installedPath := filepath.Join(installed, "fs", "bin", "linch-mind-fs")
	writeExecutable(t, installedPath)
	writeExecutable(t, filepath.Join(dev, "fs", "bin", "linch-mind-fs"))

	r := NewResolver([]string{installed, dev}, nil)
	got, ok := r.Resolve(Descriptor{ID: "fs"})
	require.True(t, ok)
	assert.Equal(t, installedPath, got)
}

func TestResolveSkipsNonExecutable(t *testing.T) {
	base := t.TempDir()
	p := filepath.Join(base, "fs", "bin", "linch-mind-fs")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))

	r := NewResolver([]string{base}, nil)
	_, ok := r.Resolve(Descriptor{ID: "fs"})
	assert.False(t, ok)
}

func TestResolveNotFound(t *testing.T) {
	r := NewResolver([]string{t.TempDir()}, nil)
	got, ok := r.Resolve(Descriptor{ID: "missing"})
	assert.False(t, ok)
	assert.Empty(t, got)
}
