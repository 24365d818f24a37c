// Package pidfile enforces the single-daemon invariant with a PID file.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// daemonMark must appear in the cmdline of a process for its PID to count as
// a live daemon. It keeps a reused PID from blocking startup forever.
const daemonMark = "linch-mind"

// ErrAlreadyRunning reports a live daemon holding the PID file.
type ErrAlreadyRunning struct {
	PID  int
	Path string
}

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("daemon already running with pid %d (%s)", e.PID, e.Path)
}

// Acquire writes the current process PID to path. If the file already names
// a live daemon process it returns ErrAlreadyRunning; a stale file (dead PID,
// or a reused PID that is not a daemon) is overwritten.
func Acquire(path string) error {
	if pid, ok := readPID(path); ok && isDaemon(pid) {
		return &ErrAlreadyRunning{PID: pid, Path: path}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the PID file if it still belongs to this process.
func Release(path string) {
	if pid, ok := readPID(path); ok && pid == os.Getpid() {
		_ = os.Remove(path)
	}
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func isDaemon(pid int) bool {
	if pid == os.Getpid() {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	cmdline, err := p.Cmdline()
	if err != nil {
		return false
	}
	return strings.Contains(cmdline, daemonMark)
}
