//go:build !windows

package launcher

import "os/exec"

const shellMetachars = "|&;<>*?`$\"'(){}[]~"

var explicitShells = []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}

// getShellCommand runs script through /bin/sh.
func getShellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/sh", "-c", script)
}

// getTrueCommand returns a command that always succeeds.
func getTrueCommand() *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/sh", "-c", "true")
}
