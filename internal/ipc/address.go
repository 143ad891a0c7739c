// Package ipc derives the local channel address of an instance from its OS
// process id and opens/dials that channel on the current platform.
//
// On Windows the channel is a named pipe (\\.\pipe\<prefix><pid>). Elsewhere
// it is a unix domain socket under Dir (<dir>/<prefix><pid>.sock).
package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultPrefix is prepended to the decimal pid to form a channel name.
const DefaultPrefix = "displayhold_ipc"

// Addressing maps process ids to channel addresses.
// The zero value is usable and resolves to DefaultPrefix and DefaultDir().
type Addressing struct {
	Prefix string // channel name prefix
	Dir    string // socket directory; ignored on windows
}

// DefaultDir returns the directory used for unix sockets when Dir is empty.
func DefaultDir() string {
	if d := os.Getenv("XDG_RUNTIME_DIR"); d != "" {
		return filepath.Join(d, "displayhold")
	}
	return filepath.Join(os.TempDir(), "displayhold")
}

func (a Addressing) prefix() string {
	p := strings.TrimSpace(a.Prefix)
	if p == "" {
		return DefaultPrefix
	}
	return p
}

func (a Addressing) dir() string {
	if a.Dir == "" {
		return DefaultDir()
	}
	return a.Dir
}

// Name returns the platform independent channel name for pid.
func (a Addressing) Name(pid int) string {
	return a.prefix() + strconv.Itoa(pid)
}

// Address returns the platform specific address for pid.
func (a Addressing) Address(pid int) string {
	return platformAddress(a, pid)
}

// ListenFunc opens a listener at addr. Listen is the production value;
// tests substitute failing implementations.
type ListenFunc func(addr string) (net.Listener, error)

// DialFunc connects to addr honoring ctx deadline.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)
