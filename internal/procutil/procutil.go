// Package procutil provides process spawning and liveness helpers.
package procutil

import "os/exec"

// ConfigureDetached configures a command to run detached from the
// current session/process group, so the daemon survives the CLI
// exiting.
func ConfigureDetached(cmd *exec.Cmd) {
	configureDetached(cmd)
}

// IsProcessAlive reports whether a process with the given PID appears alive.
func IsProcessAlive(pid int) bool {
	return isProcessAlive(pid)
}
