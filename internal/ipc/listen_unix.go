//go:build !windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

func platformAddress(a Addressing, pid int) string {
	return filepath.Join(a.dir(), a.Name(pid)+".sock")
}

// Listen opens a unix socket at addr. A leftover socket file from a crashed
// process that reused the same pid is removed when nobody answers on it.
func Listen(addr string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(addr), 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if _, err := os.Stat(addr); err == nil {
		c, derr := net.DialTimeout("unix", addr, 200*time.Millisecond)
		if derr == nil {
			_ = c.Close()
			return nil, fmt.Errorf("address %s already in use", addr)
		}
		if rerr := os.Remove(addr); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket: %w", rerr)
		}
	}
	l, err := net.Listen("unix", addr)
	if err != nil {
		return nil, err
	}
	_ = os.Chmod(addr, 0o600)
	return l, nil
}

// Dial connects to the unix socket at addr.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", addr)
}
