package connector

import "time"

// RunningState is the lifecycle status of a connector.
type RunningState string

const (
	StateStopped  RunningState = "stopped"
	StateStarting RunningState = "starting"
	StateRunning  RunningState = "running"
	StateStopping RunningState = "stopping"
	StateError    RunningState = "error"
)

// HasProcess reports whether a state is one in which a PID must be recorded.
func (s RunningState) HasProcess() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// RuntimeStatus is the mutable runtime record for one registered connector.
// It is owned exclusively by the Supervisor; all mutation goes through its
// transition methods. PID is zero exactly when no process is believed alive.
type RuntimeStatus struct {
	ConnectorID   string       `json:"connector_id"`
	Enabled       bool         `json:"enabled"`
	State         RunningState `json:"running_state"`
	PID           int          `json:"process_id,omitempty"`
	LastHeartbeat time.Time    `json:"last_heartbeat,omitzero"`
	ErrorCode     string       `json:"error_code,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	// Observability counters, updated by data-ingestion collaborators.
	DataCount    int64     `json:"data_count"`
	LastActivity time.Time `json:"last_activity,omitzero"`
}

// Healthy holds iff the connector is enabled and actually running.
func (s RuntimeStatus) Healthy() bool {
	return s.Enabled && s.State == StateRunning
}

// ShouldBeRunning is the policy bit: whether the supervisor wants it up.
func (s RuntimeStatus) ShouldBeRunning() bool { return s.Enabled }
