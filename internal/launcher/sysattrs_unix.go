//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr puts the shortcut in its own process group so a
// terminal signal aimed at displayhold does not reach it. When detached it
// gets a new session and survives the parent's terminal.
func configureSysProcAttr(cmd *exec.Cmd, detached bool) {
	attrs := &syscall.SysProcAttr{}
	if detached {
		attrs.Setsid = true
	} else {
		attrs.Setpgid = true
	}
	cmd.SysProcAttr = attrs
}
