//go:build !windows

package server

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linch-mind/daemon/internal/config"
	"github.com/linch-mind/daemon/internal/connector"
	"github.com/linch-mind/daemon/internal/ipc"
	"github.com/linch-mind/daemon/internal/logger"
)

func newTestRouter(t *testing.T) (*ipc.Router, *connector.Supervisor) {
	t.Helper()
	sup := connector.NewSupervisor(connector.Options{
		Resolver:  connector.NewResolver([]string{t.TempDir()}, nil),
		Launcher:  connector.NewLauncher(filepath.Join(t.TempDir(), "d.sock"), logger.FileConfig{Dir: t.TempDir()}, nil),
		StopGrace: time.Second,
	})
	cfg := &config.Config{
		Connectors: map[string]map[string]any{
			"filesystem": {"watch_paths": []string{"/home"}},
		},
	}
	return Routes(sup, cfg), sup
}

func dispatch(t *testing.T, r *ipc.Router, method, path string, data any) ipc.Response {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		require.NoError(t, err)
		raw = b
	}
	return r.Dispatch(context.Background(), ipc.Message{
		Method: method, Path: path, Data: raw, RequestID: "t-1",
	})
}

func TestHealthRoute(t *testing.T) {
	r, _ := newTestRouter(t)
	resp := dispatch(t, r, "GET", "/health", nil)
	require.True(t, resp.Success)

	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.Equal(t, "ok", out["status"])
	assert.Contains(t, out, "uptime_seconds")
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	resp := dispatch(t, r, "GET", "/connector-lifecycle/nope", nil)
	require.False(t, resp.Success)
	assert.Equal(t, ipc.CodeNotFound, resp.Err.Code)
}

func TestInstallAndDiscovery(t *testing.T) {
	r, _ := newTestRouter(t)

	resp := dispatch(t, r, "POST", "/connector-lifecycle/install", map[string]any{
		"id": "filesystem", "display_name": "Filesystem", "version": "1.0.0",
	})
	require.True(t, resp.Success, "install failed: %v", resp.Err)

	var st connector.RuntimeStatus
	require.NoError(t, json.Unmarshal(resp.Data, &st))
	assert.Equal(t, connector.StateStopped, st.State)
	assert.True(t, st.Enabled, "enabled must default to true when omitted")

	resp = dispatch(t, r, "GET", "/connector-lifecycle/discovery", nil)
	require.True(t, resp.Success)
	var disc struct {
		Connectors []connector.Descriptor `json:"connectors"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &disc))
	require.Len(t, disc.Connectors, 1)
	assert.Equal(t, "filesystem", disc.Connectors[0].ID)
}

func TestInstallRejectsMalformedBody(t *testing.T) {
	r, _ := newTestRouter(t)
	resp := r.Dispatch(context.Background(), ipc.Message{
		Method: "POST", Path: "/connector-lifecycle/install", Data: []byte(`"not an object"`),
	})
	require.False(t, resp.Success)
	assert.Equal(t, ipc.CodeInvalidRequest, resp.Err.Code)
}

func TestCollectorsRoutes(t *testing.T) {
	r, sup := newTestRouter(t)
	require.NoError(t, sup.Register(connector.Descriptor{ID: "clipboard", Enabled: true}))

	resp := dispatch(t, r, "GET", "/connector-lifecycle/collectors", nil)
	require.True(t, resp.Success)
	var list struct {
		Collectors []connector.RuntimeStatus `json:"collectors"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list.Collectors, 1)

	resp = dispatch(t, r, "GET", "/connector-lifecycle/collectors/clipboard", nil)
	require.True(t, resp.Success)

	resp = dispatch(t, r, "GET", "/connector-lifecycle/collectors/ghost", nil)
	require.False(t, resp.Success)
	assert.Equal(t, ipc.CodeNotFound, resp.Err.Code)
}

func TestStartRouteSurfacesResolverError(t *testing.T) {
	r, sup := newTestRouter(t)
	require.NoError(t, sup.Register(connector.Descriptor{ID: "clipboard", Enabled: true}))

	resp := dispatch(t, r, "POST", "/connector-lifecycle/collectors/clipboard/start", nil)
	require.False(t, resp.Success)
	assert.Equal(t, ipc.CodeExecutableNotFound, resp.Err.Code)
}

func TestStopRouteIdempotent(t *testing.T) {
	r, sup := newTestRouter(t)
	require.NoError(t, sup.Register(connector.Descriptor{ID: "clipboard", Enabled: true}))

	for i := 0; i < 2; i++ {
		resp := dispatch(t, r, "POST", "/connector-lifecycle/collectors/clipboard/stop", nil)
		require.True(t, resp.Success)
	}
}

func TestHeartbeatRouteRecordsActivity(t *testing.T) {
	r, sup := newTestRouter(t)
	require.NoError(t, sup.Register(connector.Descriptor{ID: "clipboard", Enabled: true}))

	resp := dispatch(t, r, "POST", "/connector-lifecycle/collectors/clipboard/heartbeat",
		map[string]int64{"data_count": 12})
	require.True(t, resp.Success)

	st, err := sup.Status("clipboard")
	require.Nil(t, err)
	assert.False(t, st.LastHeartbeat.IsZero())
	assert.Equal(t, int64(12), st.DataCount)
}

func TestClearErrorRoute(t *testing.T) {
	r, sup := newTestRouter(t)
	require.NoError(t, sup.Register(connector.Descriptor{ID: "clipboard", Enabled: true}))
	_ = sup.Start("clipboard") // no executable, lands in Error

	resp := dispatch(t, r, "POST", "/connector-lifecycle/collectors/clipboard/clear-error", nil)
	require.True(t, resp.Success)

	st, err := sup.Status("clipboard")
	require.Nil(t, err)
	assert.Equal(t, connector.StateStopped, st.State)
}

func TestPullConfigRoute(t *testing.T) {
	r, sup := newTestRouter(t)
	require.NoError(t, sup.Register(connector.Descriptor{ID: "filesystem", Enabled: true}))
	require.NoError(t, sup.Register(connector.Descriptor{ID: "clipboard", Enabled: true}))

	resp := dispatch(t, r, "GET", "/connector-lifecycle/collectors/filesystem/config", nil)
	require.True(t, resp.Success)
	var out struct {
		ConnectorID string         `json:"connector_id"`
		Settings    map[string]any `json:"settings"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.Equal(t, "filesystem", out.ConnectorID)
	assert.Contains(t, out.Settings, "watch_paths")

	// connectors without settings get an empty document, not an error;
	// decode into a fresh value so the first response cannot bleed through
	resp = dispatch(t, r, "GET", "/connector-lifecycle/collectors/clipboard/config", nil)
	require.True(t, resp.Success)
	out.Settings = nil
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.Empty(t, out.Settings)

	// unknown connectors are rejected
	resp = dispatch(t, r, "GET", "/connector-lifecycle/collectors/ghost/config", nil)
	require.False(t, resp.Success)
	assert.Equal(t, ipc.CodeNotFound, resp.Err.Code)
}
