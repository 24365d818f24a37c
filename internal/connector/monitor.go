package connector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/linch-mind/daemon/internal/history"
	"github.com/linch-mind/daemon/internal/ipc"
	"github.com/linch-mind/daemon/internal/metrics"
)

// procSignature marks connector executables in a process cmdline. The
// resolver only launches binaries named with this prefix, so a cmdline scan
// can recover orphans after a daemon restart.
const procSignature = "linch-mind-"

// reapGrace is the graceful window given to duplicate and orphan processes.
const reapGrace = 2 * time.Second

// Monitor periodically verifies that runtime state matches the OS process
// table: it demotes connectors whose process died, enforces the
// spawn-to-first-heartbeat deadline, reconciles duplicate processes down to
// one, and clears stale lock files. The spawn-time PID registry is the
// primary source of truth; the cmdline scan exists for orphan recovery.
type Monitor struct {
	sup              *Supervisor
	launcher         *Launcher
	runDir           string
	interval         time.Duration
	heartbeatTimeout time.Duration
	log              *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

type MonitorOptions struct {
	Supervisor       *Supervisor
	Launcher         *Launcher
	RunDir           string // lock-file directory; empty disables cleanup
	Interval         time.Duration
	HeartbeatTimeout time.Duration
	Log              *slog.Logger
}

func NewMonitor(opts MonitorOptions) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 30 * time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Monitor{
		sup:              opts.Supervisor,
		launcher:         opts.Launcher,
		runDir:           opts.RunDir,
		interval:         opts.Interval,
		heartbeatTimeout: opts.HeartbeatTimeout,
		log:              opts.Log,
	}
}

// Start launches the sweep loop. The first sweep runs immediately so orphans
// from a previous daemon instance are reaped at startup, not one interval in.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		m.Sweep()
		t := time.NewTicker(m.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Sweep()
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight sweep to finish.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// Sweep runs one full health pass. Exported so callers can force a pass in
// tests or after bulk operations.
func (m *Monitor) Sweep() {
	scanned := m.scanProcessTable()

	for _, st := range m.sup.Statuses() {
		switch {
		case st.State.HasProcess():
			m.checkAlive(st, scanned[st.ConnectorID])
		default:
			m.reapOrphans(st.ConnectorID, scanned[st.ConnectorID])
		}
	}

	m.cleanStaleLocks()
}

// checkAlive handles a connector that should have a process: liveness,
// heartbeat deadline, and duplicate reconciliation.
func (m *Monitor) checkAlive(st RuntimeStatus, found []foundProc) {
	// Stopping is owned by an in-flight Stop call; leave it alone.
	if st.State == StateStopping {
		return
	}

	candidates := make(map[int]int64) // pid -> creation unix seconds
	if child, ok := m.sup.Spawned()[st.ConnectorID]; ok && Alive(child.PID) {
		candidates[child.PID] = child.StartUnix
	}
	for _, p := range found {
		candidates[p.pid] = p.startUnix
	}

	if len(candidates) == 0 {
		m.sup.DemoteExited(st.ConnectorID, ipc.CodeProcessExited,
			fmt.Sprintf("process %d exited unexpectedly", st.PID))
		return
	}

	if len(candidates) > 1 {
		m.reconcile(st.ConnectorID, candidates)
	}

	if st.State == StateStarting && st.LastHeartbeat.IsZero() {
		if child, ok := m.sup.Spawned()[st.ConnectorID]; ok &&
			time.Since(child.SpawnedAt) > m.heartbeatTimeout {
			_ = m.launcher.Terminate(child.PID, reapGrace)
			m.sup.DemoteExited(st.ConnectorID, ipc.CodeSpawnFailure,
				fmt.Sprintf("no heartbeat within %s of spawn", m.heartbeatTimeout))
		}
	}
}

// reconcile keeps exactly one process per connector: the most recently
// created survives, every other candidate is terminated. The newest wins
// because it is the instance the most recent start produced.
func (m *Monitor) reconcile(id string, candidates map[int]int64) {
	type cand struct {
		pid       int
		startUnix int64
	}
	ordered := make([]cand, 0, len(candidates))
	for pid, su := range candidates {
		ordered = append(ordered, cand{pid, su})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].startUnix != ordered[j].startUnix {
			return ordered[i].startUnix > ordered[j].startUnix
		}
		return ordered[i].pid > ordered[j].pid
	})

	survivor := ordered[0]
	reaped := make([]int, 0, len(ordered)-1)
	for _, c := range ordered[1:] {
		_ = m.launcher.Terminate(c.pid, reapGrace)
		reaped = append(reaped, c.pid)
	}

	m.sup.AdoptSurvivor(id, Child{PID: survivor.pid, StartUnix: survivor.startUnix, SpawnedAt: time.Now()})
	metrics.AddDuplicatesReaped(id, len(reaped))
	m.sup.Publish(history.Event{
		Type: history.EventReconcile, ConnectorID: id, PID: survivor.pid,
		Message:    fmt.Sprintf("kept %d, terminated %v", survivor.pid, reaped),
		OccurredAt: time.Now().UTC(),
	})
	m.log.Warn("reconciled duplicate connector processes",
		"connector_id", id, "kept", survivor.pid, "terminated", reaped)
}

// reapOrphans terminates signature-matching processes for a connector that
// should not have one, typically children of a previous daemon instance.
func (m *Monitor) reapOrphans(id string, found []foundProc) {
	for _, p := range found {
		_ = m.launcher.Terminate(p.pid, reapGrace)
		if !Alive(p.pid) {
			m.sup.ConfirmReaped(id, p.pid)
		}
		metrics.AddDuplicatesReaped(id, 1)
		m.sup.Publish(history.Event{
			Type: history.EventReconcile, ConnectorID: id, PID: p.pid,
			Message:    "terminated orphan process",
			OccurredAt: time.Now().UTC(),
		})
		m.log.Warn("terminated orphan connector process", "connector_id", id, "pid", p.pid)
	}
}

type foundProc struct {
	pid       int
	startUnix int64
}

// scanProcessTable maps registered connector ids to live processes whose
// cmdline carries the connector executable signature.
func (m *Monitor) scanProcessTable() map[string][]foundProc {
	out := make(map[string][]foundProc)

	needles := make(map[string]string) // needle -> connector id
	for _, d := range m.sup.Descriptors() {
		needles[procSignature+strings.ReplaceAll(d.ID, "_", "-")] = d.ID
	}
	if len(needles) == 0 {
		return out
	}

	procs, err := process.Processes()
	if err != nil {
		m.log.Debug("process table scan failed", "err", err)
		return out
	}
	self := os.Getpid()
	for _, p := range procs {
		if int(p.Pid) == self {
			continue
		}
		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			continue
		}
		for needle, id := range needles {
			if !strings.Contains(cmdline, needle) {
				continue
			}
			created, err := p.CreateTime()
			if err != nil {
				created = 0
			}
			out[id] = append(out[id], foundProc{pid: int(p.Pid), startUnix: created / 1000})
			break
		}
	}
	return out
}

// cleanStaleLocks removes <id>.lock files in the run dir whose recorded PID
// is no longer alive.
func (m *Monitor) cleanStaleLocks() {
	if m.runDir == "" {
		return
	}
	entries, err := os.ReadDir(m.runDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		path := filepath.Join(m.runDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil || !Alive(pid) {
			if rmErr := os.Remove(path); rmErr == nil {
				m.log.Info("removed stale lock file", "path", path)
			}
		}
	}
}
