package connector

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Resolver locates a connector's executable on disk. It is side-effect-free
// and re-entrant, and it never caches negative results so a connector built
// after daemon startup is still discoverable.
type Resolver struct {
	// BaseDirs are searched in priority order: the user-data connectors
	// directory first, then a development-mode project directory.
	BaseDirs []string
	log      *slog.Logger
}

func NewResolver(baseDirs []string, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{BaseDirs: baseDirs, log: log}
}

// candidate subdirectory layouts, checked per base directory
var layoutDirs = []string{
	filepath.Join("bin", "release"),
	filepath.Join("bin", "debug"),
	"bin",
	".",
}

// Resolve returns the absolute path to the connector's executable and true,
// or "" and false when nothing matches. Every attempted path is logged on
// failure for diagnosis.
func (r *Resolver) Resolve(desc Descriptor) (string, bool) {
	var attempted []string

	// 1. Production path for the current platform under any base directory.
	if rel, ok := desc.ProductionPaths[CurrentPlatform()]; ok && rel != "" {
		for _, base := range r.BaseDirs {
			p := filepath.Join(base, desc.ID, rel)
			if isExecutableFile(p) {
				return p, true
			}
			attempted = append(attempted, p)
		}
	}

	// 2. Search base dirs x layouts x filename patterns.
	for _, base := range r.BaseDirs {
		for _, dir := range layoutDirs {
			for _, name := range candidateNames(desc.ID) {
				p := filepath.Join(base, desc.ID, dir, name)
				if isExecutableFile(p) {
					return p, true
				}
				attempted = append(attempted, p)
			}
		}
	}

	r.log.Warn("connector executable not found",
		"connector_id", desc.ID,
		"attempted", attempted)
	return "", false
}

// candidateNames yields the filename patterns for an id: the packaged
// "linch-mind-<id>" form and the bare id, each with and without the platform
// executable suffix. Underscores in ids are normalized to hyphens.
func candidateNames(id string) []string {
	norm := strings.ReplaceAll(id, "_", "-")
	stems := []string{"linch-mind-" + norm, norm}
	if norm != id {
		stems = append(stems, "linch-mind-"+id, id)
	}
	suffix := executableSuffix()
	names := make([]string, 0, len(stems)*2)
	for _, s := range stems {
		if suffix != "" {
			names = append(names, s+suffix)
		}
		names = append(names, s)
	}
	return names
}

func executableSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

func isExecutableFile(p string) bool {
	fi, err := os.Stat(p)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return fi.Mode().Perm()&0o111 != 0
}
