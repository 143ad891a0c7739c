//go:build windows

package launcher

import "os/exec"

const shellMetachars = "|&<>^%\""

var explicitShells = []string{"cmd /c ", "cmd.exe /c "}

// getShellCommand runs script through cmd.exe.
func getShellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", "/c", script)
}

// getTrueCommand returns a command that always succeeds.
func getTrueCommand() *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", "/c", "rem")
}
