//go:build !windows

package ipc

import (
	"net"
	"os"
	"path/filepath"
	"time"
)

// listen binds a unix domain socket at path. A leftover socket file from a
// crashed daemon is removed only when nothing is accepting on it; a live
// listener means another daemon owns the address and bind must fail.
func listen(path string) (net.Listener, error) {
	if _, err := os.Stat(path); err == nil {
		if c, derr := net.DialTimeout("unix", path, 500*time.Millisecond); derr == nil {
			_ = c.Close()
			// someone is alive on the socket; let net.Listen report the conflict
		} else {
			_ = os.Remove(path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	// the socket is a local control channel; keep it owner-only
	_ = os.Chmod(path, 0o600)
	return ln, nil
}

func dial(path string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", path, timeout)
}

func removeSocket(path string) {
	_ = os.Remove(path)
}
