// Package server binds the IPC route table and the optional debug HTTP
// listener to a supervisor.
package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/linch-mind/daemon/internal/config"
	"github.com/linch-mind/daemon/internal/connector"
	"github.com/linch-mind/daemon/internal/ipc"
)

// Routes builds the static route table. Built once at startup; unknown
// method/path combinations are rejected by the router with NOT_FOUND.
func Routes(sup *connector.Supervisor, cfg *config.Config) *ipc.Router {
	h := &handlers{sup: sup, cfg: cfg, startedAt: time.Now()}
	r := ipc.NewRouter(nil)

	r.Handle("GET", "/health", h.health)
	r.Handle("GET", "/connector-lifecycle/discovery", h.discovery)
	r.Handle("GET", "/connector-lifecycle/collectors", h.listCollectors)
	r.Handle("GET", "/connector-lifecycle/collectors/{connector_id}", h.getCollector)
	r.Handle("POST", "/connector-lifecycle/collectors/{connector_id}/start", h.start)
	r.Handle("POST", "/connector-lifecycle/collectors/{connector_id}/stop", h.stop)
	r.Handle("POST", "/connector-lifecycle/collectors/{connector_id}/restart", h.restart)
	r.Handle("POST", "/connector-lifecycle/collectors/{connector_id}/heartbeat", h.heartbeat)
	r.Handle("POST", "/connector-lifecycle/collectors/{connector_id}/clear-error", h.clearError)
	r.Handle("GET", "/connector-lifecycle/collectors/{connector_id}/config", h.pullConfig)
	r.Handle("POST", "/connector-lifecycle/install", h.install)

	return r
}

type handlers struct {
	sup       *connector.Supervisor
	cfg       *config.Config
	startedAt time.Time
}

type healthResult struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (h *handlers) health(_ context.Context, _ ipc.Request) (any, *ipc.Error) {
	return healthResult{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}, nil
}

type discoveryResult struct {
	Connectors []connector.Descriptor `json:"connectors"`
}

func (h *handlers) discovery(_ context.Context, _ ipc.Request) (any, *ipc.Error) {
	return discoveryResult{Connectors: h.sup.Descriptors()}, nil
}

type collectorsResult struct {
	Collectors []connector.RuntimeStatus `json:"collectors"`
}

func (h *handlers) listCollectors(_ context.Context, _ ipc.Request) (any, *ipc.Error) {
	return collectorsResult{Collectors: h.sup.Statuses()}, nil
}

func (h *handlers) getCollector(_ context.Context, req ipc.Request) (any, *ipc.Error) {
	return h.sup.Status(req.Params["connector_id"])
}

func (h *handlers) start(_ context.Context, req ipc.Request) (any, *ipc.Error) {
	id := req.Params["connector_id"]
	if err := h.sup.Start(id); err != nil {
		return nil, err
	}
	return h.sup.Status(id)
}

func (h *handlers) stop(_ context.Context, req ipc.Request) (any, *ipc.Error) {
	id := req.Params["connector_id"]
	if err := h.sup.Stop(id); err != nil {
		return nil, err
	}
	return h.sup.Status(id)
}

func (h *handlers) restart(_ context.Context, req ipc.Request) (any, *ipc.Error) {
	id := req.Params["connector_id"]
	if err := h.sup.Restart(id); err != nil {
		return nil, err
	}
	return h.sup.Status(id)
}

type heartbeatBody struct {
	DataCount int64 `json:"data_count"`
}

func (h *handlers) heartbeat(_ context.Context, req ipc.Request) (any, *ipc.Error) {
	id := req.Params["connector_id"]
	if err := h.sup.HeartbeatReceived(id); err != nil {
		return nil, err
	}
	if len(req.Data) > 0 {
		var body heartbeatBody
		if err := json.Unmarshal(req.Data, &body); err != nil {
			return nil, ipc.NewError(ipc.CodeInvalidRequest, "invalid heartbeat body: %v", err)
		}
		if body.DataCount > 0 {
			h.sup.RecordActivity(id, body.DataCount)
		}
	}
	return map[string]bool{"ok": true}, nil
}

func (h *handlers) clearError(_ context.Context, req ipc.Request) (any, *ipc.Error) {
	id := req.Params["connector_id"]
	if err := h.sup.ClearError(id); err != nil {
		return nil, err
	}
	return h.sup.Status(id)
}

type pullConfigResult struct {
	ConnectorID string         `json:"connector_id"`
	Settings    map[string]any `json:"settings"`
}

// pullConfig serves the per-connector settings blob. A spawned connector
// reads its configuration through this call, not command-line flags.
func (h *handlers) pullConfig(_ context.Context, req ipc.Request) (any, *ipc.Error) {
	id := req.Params["connector_id"]
	if _, err := h.sup.Status(id); err != nil {
		return nil, err
	}
	return pullConfigResult{ConnectorID: id, Settings: h.cfg.ConnectorSettings(id)}, nil
}

// installBody shadows the descriptor's enabled flag so a registration that
// omits it defaults to enabled.
type installBody struct {
	connector.Descriptor
	Enabled *bool `json:"enabled"`
}

func (h *handlers) install(ctx context.Context, req ipc.Request) (any, *ipc.Error) {
	var body installBody
	if err := json.Unmarshal(req.Data, &body); err != nil {
		return nil, ipc.NewError(ipc.CodeInvalidRequest, "invalid descriptor: %v", err)
	}
	d := body.Descriptor
	d.Enabled = body.Enabled == nil || *body.Enabled
	if err := h.sup.Install(ctx, d); err != nil {
		return nil, err
	}
	return h.sup.Status(d.ID)
}
