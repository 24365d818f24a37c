package connector

import (
	"fmt"
	"runtime"
	"strings"
)

// Platform keys used in descriptor executable-path templates.
const (
	PlatformLinux   = "linux"
	PlatformMacOS   = "macos"
	PlatformWindows = "windows"
)

// CurrentPlatform maps the host OS to one of the fixed platform keys.
func CurrentPlatform() string {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	default:
		return PlatformLinux
	}
}

// Descriptor is the static identity of a connector type. It is created at
// registration (install) time and updated on version bumps; the supervisor
// never mutates it at runtime.
type Descriptor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	// ProductionPaths maps a platform key to the packaged executable's
	// relative path under <base>/<id>/.
	ProductionPaths map[string]string `json:"production_paths,omitempty"`
	// Enabled marks whether the connector should auto-start.
	Enabled bool `json:"enabled"`
}

// Validate checks the fields a registration must carry.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("descriptor requires id")
	}
	if strings.ContainsAny(d.ID, "/\\") || strings.Contains(d.ID, "..") {
		return fmt.Errorf("descriptor id %q contains path separators", d.ID)
	}
	return nil
}
