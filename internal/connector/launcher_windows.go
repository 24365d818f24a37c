//go:build windows

package connector

import (
	"os/exec"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

const createNewProcessGroup = 0x00000200

func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
}

// Alive reports whether pid refers to a live process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid))
	return err == nil && ok
}

// Windows has no graceful signal for arbitrary processes; both paths
// terminate via the process handle.
func terminateGracefully(pid int) { killByHandle(pid) }
func killForcefully(pid int)      { killByHandle(pid) }

func killByHandle(pid int) {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return
	}
	_ = p.Kill()
}
