package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/linch-mind/daemon/internal/history"
	"github.com/linch-mind/daemon/internal/ipc"
	"github.com/linch-mind/daemon/internal/metrics"
)

// RegistrationStore is the slice of persistence the supervisor needs. The
// registry package provides implementations.
type RegistrationStore interface {
	SaveDescriptor(ctx context.Context, d Descriptor) error
	ListDescriptors(ctx context.Context) ([]Descriptor, error)
}

// Options configures a Supervisor.
type Options struct {
	Resolver         *Resolver
	Launcher         *Launcher
	Store            RegistrationStore // optional
	Sinks            []history.Sink    // optional lifecycle event sinks
	StopGrace        time.Duration     // graceful-stop window before forced kill
	HeartbeatTimeout time.Duration     // max Starting->first heartbeat wait
	Log              *slog.Logger
}

// Supervisor owns every ConnectorRuntimeStatus and is the only component
// allowed to mutate one. Each transition runs to completion under the
// supervisor mutex, so concurrent callers never observe a torn state. The
// mutex is never held across a termination grace wait.
//
// It is constructed once at daemon startup and passed by reference to the
// IPC route table and the health monitor; there is no package-level instance.
type Supervisor struct {
	mu          sync.Mutex
	descriptors map[string]Descriptor
	statuses    map[string]*RuntimeStatus
	spawned     map[string]Child // PID registry recorded at spawn time

	resolver         *Resolver
	launcher         *Launcher
	store            RegistrationStore
	sinks            []history.Sink
	stopGrace        time.Duration
	heartbeatTimeout time.Duration
	log              *slog.Logger
}

func NewSupervisor(opts Options) *Supervisor {
	if opts.StopGrace <= 0 {
		opts.StopGrace = 5 * time.Second
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 30 * time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Supervisor{
		descriptors:      make(map[string]Descriptor),
		statuses:         make(map[string]*RuntimeStatus),
		spawned:          make(map[string]Child),
		resolver:         opts.Resolver,
		launcher:         opts.Launcher,
		store:            opts.Store,
		sinks:            opts.Sinks,
		stopGrace:        opts.StopGrace,
		heartbeatTimeout: opts.HeartbeatTimeout,
		log:              opts.Log,
	}
}

// Register adds a descriptor and creates its runtime status on first
// registration (Stopped, enabled per descriptor). The status is never
// deleted, only overwritten by later transitions. Re-registering updates the
// descriptor (version bumps) without touching runtime state.
func (s *Supervisor) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.descriptors[d.ID] = d
	if _, ok := s.statuses[d.ID]; !ok {
		s.statuses[d.ID] = &RuntimeStatus{
			ConnectorID: d.ID,
			Enabled:     d.Enabled,
			State:       StateStopped,
		}
		metrics.SetCurrentState(d.ID, string(StateStopped), true)
	}
	return nil
}

// Install persists the registration and registers it in memory.
func (s *Supervisor) Install(ctx context.Context, d Descriptor) *ipc.Error {
	if err := d.Validate(); err != nil {
		return ipc.NewError(ipc.CodeInvalidRequest, "%v", err)
	}
	if s.store != nil {
		if err := s.store.SaveDescriptor(ctx, d); err != nil {
			return ipc.NewError(ipc.CodeInternalError, "persist registration: %v", err)
		}
	}
	if err := s.Register(d); err != nil {
		return ipc.NewError(ipc.CodeInvalidRequest, "%v", err)
	}
	s.log.Info("connector installed", "connector_id", d.ID, "version", d.Version)
	return nil
}

// LoadRegistered restores persisted registrations, typically at startup.
func (s *Supervisor) LoadRegistered(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	descs, err := s.store.ListDescriptors(ctx)
	if err != nil {
		return fmt.Errorf("load registrations: %w", err)
	}
	for _, d := range descs {
		if err := s.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// Descriptors returns all registered descriptors sorted by id.
func (s *Supervisor) Descriptors() []Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Descriptor, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Statuses returns a snapshot of every runtime status sorted by id.
func (s *Supervisor) Statuses() []RuntimeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RuntimeStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectorID < out[j].ConnectorID })
	return out
}

// Status returns a snapshot for one connector.
func (s *Supervisor) Status(id string) (RuntimeStatus, *ipc.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[id]
	if !ok {
		return RuntimeStatus{}, ipc.NewError(ipc.CodeNotFound, "unknown connector: %s", id)
	}
	return *st, nil
}

// Start spawns the connector's process. Valid only from Stopped or Error.
// It returns once the process has been spawned; confirmation of health (the
// first heartbeat) is asynchronous and enforced by the health monitor.
func (s *Supervisor) Start(id string) *ipc.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statuses[id]
	if !ok {
		return ipc.NewError(ipc.CodeNotFound, "unknown connector: %s", id)
	}
	if st.State != StateStopped && st.State != StateError {
		return ipc.NewError(ipc.CodeInvalidRequest, "connector %s is %s; start requires stopped or error", id, st.State)
	}
	desc := s.descriptors[id]

	path, found := s.resolver.Resolve(desc)
	if !found {
		e := ipc.NewError(ipc.CodeExecutableNotFound, "no executable found for connector %s", id)
		s.setErrorLocked(st, e.Code, e.Message, true)
		return e
	}

	child, err := s.launcher.Spawn(path, id, nil)
	if err != nil {
		e := ipc.NewError(ipc.CodeSpawnFailure, "spawn %s: %v", path, err)
		s.setErrorLocked(st, e.Code, e.Message, true)
		return e
	}

	s.transitionLocked(st, StateStarting)
	st.PID = child.PID
	st.ErrorCode, st.ErrorMessage = "", ""
	st.LastHeartbeat = time.Time{}
	s.spawned[id] = child

	metrics.IncStart(id)
	s.emit(history.Event{
		Type: history.EventStart, ConnectorID: id, PID: child.PID,
		State: string(StateStarting), OccurredAt: time.Now().UTC(),
	})
	s.log.Info("connector started", "connector_id", id, "pid", child.PID, "path", path)
	return nil
}

// StartEnabled starts every enabled connector that is currently Stopped,
// honoring the descriptor auto-start policy at daemon startup. A failed
// start is recorded on that connector and does not abort the pass.
func (s *Supervisor) StartEnabled() {
	for _, st := range s.Statuses() {
		if !st.ShouldBeRunning() || st.State != StateStopped {
			continue
		}
		if err := s.Start(st.ConnectorID); err != nil {
			s.log.Warn("auto-start failed", "connector_id", st.ConnectorID, "err", err)
		}
	}
}

// Stop terminates the connector's process. Calling it on a connector that is
// already Stopped (or in Error with no live process) is a no-op success; a
// stop already in flight cannot be cancelled, and a second caller simply
// returns. The grace wait happens outside the supervisor mutex.
func (s *Supervisor) Stop(id string) *ipc.Error {
	s.mu.Lock()
	st, ok := s.statuses[id]
	if !ok {
		s.mu.Unlock()
		return ipc.NewError(ipc.CodeNotFound, "unknown connector: %s", id)
	}
	switch st.State {
	case StateStopped, StateStopping:
		s.mu.Unlock()
		return nil
	case StateError:
		// An error state may still carry a PID that callers never confirmed
		// gone; reap it before declaring the connector stopped.
		pid := st.PID
		s.transitionLocked(st, StateStopped)
		st.PID = 0
		st.ErrorCode, st.ErrorMessage = "", ""
		delete(s.spawned, id)
		s.mu.Unlock()
		if pid != 0 {
			_ = s.launcher.Terminate(pid, s.stopGrace)
		}
		return nil
	}

	pid := st.PID
	s.transitionLocked(st, StateStopping)
	s.mu.Unlock()

	_ = s.launcher.Terminate(pid, s.stopGrace)

	s.mu.Lock()
	s.transitionLocked(st, StateStopped)
	st.PID = 0
	delete(s.spawned, id)
	s.mu.Unlock()

	metrics.IncStop(id)
	s.emit(history.Event{
		Type: history.EventStop, ConnectorID: id, PID: pid,
		State: string(StateStopped), OccurredAt: time.Now().UTC(),
	})
	s.log.Info("connector stopped", "connector_id", id, "pid", pid)
	return nil
}

// Restart is stop followed by start; a stop failure aborts the restart.
func (s *Supervisor) Restart(id string) *ipc.Error {
	if err := s.Stop(id); err != nil {
		return err
	}
	return s.Start(id)
}

// HeartbeatReceived records liveness from a connector. A heartbeat while
// Starting promotes to Running.
func (s *Supervisor) HeartbeatReceived(id string) *ipc.Error {
	s.mu.Lock()
	st, ok := s.statuses[id]
	if !ok {
		s.mu.Unlock()
		return ipc.NewError(ipc.CodeNotFound, "unknown connector: %s", id)
	}
	st.LastHeartbeat = time.Now()
	promoted := false
	if st.State == StateStarting {
		s.transitionLocked(st, StateRunning)
		promoted = true
	}
	pid := st.PID
	s.mu.Unlock()

	metrics.IncHeartbeat(id)
	if promoted {
		s.emit(history.Event{
			Type: history.EventHeartbeat, ConnectorID: id, PID: pid,
			State: string(StateRunning), OccurredAt: time.Now().UTC(),
		})
		s.log.Info("connector running", "connector_id", id, "pid", pid)
	}
	return nil
}

// SetError moves a connector to Error from any state. The PID is left in
// place: callers must confirm the process is actually gone (DemoteExited)
// before the PID is cleared, so a live misbehaving process is never leaked.
func (s *Supervisor) SetError(id, code, message string) *ipc.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[id]
	if !ok {
		return ipc.NewError(ipc.CodeNotFound, "unknown connector: %s", id)
	}
	s.setErrorLocked(st, code, message, false)
	return nil
}

// ClearError returns an Error connector to Stopped. This is the only way out
// of the error state other than a successful start.
func (s *Supervisor) ClearError(id string) *ipc.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[id]
	if !ok {
		return ipc.NewError(ipc.CodeNotFound, "unknown connector: %s", id)
	}
	if st.State != StateError {
		return ipc.NewError(ipc.CodeInvalidRequest, "connector %s is %s, not error", id, st.State)
	}
	s.transitionLocked(st, StateStopped)
	st.PID = 0
	st.ErrorCode, st.ErrorMessage = "", ""
	delete(s.spawned, id)
	return nil
}

// DemoteExited is the health monitor's transition for a process confirmed
// dead: Error with the PID cleared in the same mutation.
func (s *Supervisor) DemoteExited(id, code, message string) {
	s.mu.Lock()
	st, ok := s.statuses[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	pid := st.PID
	s.setErrorLocked(st, code, message, true)
	delete(s.spawned, id)
	s.mu.Unlock()

	s.emit(history.Event{
		Type: history.EventError, ConnectorID: id, PID: pid,
		State: string(StateError), Code: code, Message: message,
		OccurredAt: time.Now().UTC(),
	})
	s.log.Warn("connector demoted to error", "connector_id", id, "pid", pid, "code", code, "reason", message)
}

// AdoptSurvivor points a connector at the process reconciliation kept, when
// the recorded PID was among the duplicates that were terminated.
func (s *Supervisor) AdoptSurvivor(id string, child Child) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[id]
	if !ok || !st.State.HasProcess() {
		return
	}
	st.PID = child.PID
	s.spawned[id] = child
}

// ConfirmReaped clears the recorded PID once the health monitor has
// terminated pid for a connector outside a process-owning state. SetError
// preserves the PID until the process is confirmed gone; this is that
// confirmation for the orphan-reap path.
func (s *Supervisor) ConfirmReaped(id string, pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[id]
	if !ok || st.State.HasProcess() {
		return
	}
	if st.PID == pid {
		st.PID = 0
		delete(s.spawned, id)
	}
}

// RecordActivity updates the observability counters on behalf of
// data-ingestion collaborators.
func (s *Supervisor) RecordActivity(id string, items int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.statuses[id]; ok {
		st.DataCount += items
		st.LastActivity = time.Now()
	}
}

// Spawned returns a copy of the spawn-time PID registry.
func (s *Supervisor) Spawned() map[string]Child {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Child, len(s.spawned))
	for id, c := range s.spawned {
		out[id] = c
	}
	return out
}

// Shutdown stops every connector that still has a process.
func (s *Supervisor) Shutdown() {
	for _, st := range s.Statuses() {
		if st.State.HasProcess() {
			_ = s.Stop(st.ConnectorID)
		}
	}
}

func (s *Supervisor) setErrorLocked(st *RuntimeStatus, code, message string, processGone bool) {
	s.transitionLocked(st, StateError)
	st.ErrorCode = code
	st.ErrorMessage = message
	if processGone {
		st.PID = 0
	}
	metrics.IncError(st.ConnectorID, code)
}

func (s *Supervisor) transitionLocked(st *RuntimeStatus, to RunningState) {
	from := st.State
	if from == to {
		return
	}
	st.State = to
	metrics.RecordStateTransition(st.ConnectorID, string(from), string(to))
	metrics.SetCurrentState(st.ConnectorID, string(from), false)
	metrics.SetCurrentState(st.ConnectorID, string(to), true)
}

// Publish sends a lifecycle event to the configured sinks. The health
// monitor uses it for reconciliation outcomes.
func (s *Supervisor) Publish(evt history.Event) { s.emit(evt) }

// emit fans an event out to sinks without ever blocking a transition.
func (s *Supervisor) emit(evt history.Event) {
	if len(s.sinks) == 0 {
		return
	}
	sinks := s.sinks
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, sink := range sinks {
			if err := sink.Send(ctx, evt); err != nil {
				s.log.Debug("history sink send failed", "err", err)
			}
		}
	}()
}
