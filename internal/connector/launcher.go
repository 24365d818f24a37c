package connector

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/linch-mind/daemon/internal/logger"
)

// Environment variables passed to every spawned connector. A connector reads
// its configuration through the pull-config IPC call, not command-line flags.
const (
	EnvDaemonSocket = "LINCH_DAEMON_SOCKET"
	EnvConnectorID  = "LINCH_CONNECTOR_ID"
)

// Child identifies one spawned connector process. StartUnix is the OS
// creation time in Unix seconds, recorded at spawn so PID reuse can be told
// apart from the original process.
type Child struct {
	PID       int
	StartUnix int64
	SpawnedAt time.Time
}

// Launcher spawns and terminates connector OS processes. It holds no
// per-connector state; the Supervisor owns that.
type Launcher struct {
	socketPath string
	logCfg     logger.FileConfig
	log        *slog.Logger
}

func NewLauncher(socketPath string, logCfg logger.FileConfig, log *slog.Logger) *Launcher {
	if log == nil {
		log = slog.Default()
	}
	return &Launcher{socketPath: socketPath, logCfg: logCfg, log: log}
}

// Spawn starts execPath as a connector child with the daemon contract
// environment. The child's stdout/stderr go to rotated log files. Spawn
// returns once the process has started; liveness confirmation is the health
// monitor's job.
func (l *Launcher) Spawn(execPath, connectorID string, extraEnv []string) (Child, error) {
	// #nosec G204 -- execPath comes from the resolver, not the wire
	cmd := exec.Command(execPath)
	cmd.Env = append(os.Environ(),
		EnvDaemonSocket+"="+l.socketPath,
		EnvConnectorID+"="+connectorID,
	)
	cmd.Env = append(cmd.Env, extraEnv...)
	configureSysProcAttr(cmd)

	outW, errW, err := l.logCfg.Writers(connectorID)
	if err != nil {
		return Child{}, fmt.Errorf("open log writers: %w", err)
	}
	if outW != nil {
		cmd.Stdout = outW
	} else {
		cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	if errW != nil {
		cmd.Stderr = errW
	} else {
		cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}

	if err := cmd.Start(); err != nil {
		closeWriters(outW, errW)
		return Child{}, err
	}
	pid := cmd.Process.Pid
	child := Child{PID: pid, StartUnix: procStartUnix(pid), SpawnedAt: time.Now()}

	// Reap in the background so the child never lingers as a zombie; log
	// writers are closed once the process is gone.
	go func() {
		err := cmd.Wait()
		closeWriters(outW, errW)
		if err != nil {
			l.log.Debug("connector process exited", "connector_id", connectorID, "pid", pid, "err", err)
		}
	}()

	return child, nil
}

// Terminate sends the graceful signal to pid's process group, waits up to
// grace for it to exit, then escalates to a forced kill. It returns once the
// process is confirmed gone or the kill has been issued.
func (l *Launcher) Terminate(pid int, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}
	if !Alive(pid) {
		return nil
	}
	terminateGracefully(pid)
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !Alive(pid) {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	killForcefully(pid)
	// brief wait so callers observing right after Terminate see it gone
	for i := 0; i < 10 && Alive(pid); i++ {
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}

func closeWriters(ws ...interface{ Close() error }) {
	for _, w := range ws {
		if w != nil {
			_ = w.Close()
		}
	}
}
