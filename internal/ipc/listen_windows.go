//go:build windows

package ipc

import (
	"context"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// listen binds a named pipe. addr should be a pipe name like
// `\\.\pipe\linch-mind-<env>`.
func listen(addr string) (net.Listener, error) {
	return winio.ListenPipe(addr, nil)
}

func dial(addr string, timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return winio.DialPipeContext(ctx, addr)
}

// Named pipes disappear with their listener; nothing to clean up.
func removeSocket(string) {}
