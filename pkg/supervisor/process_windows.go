//go:build windows

package supervisor

import (
	"os"
	"os/exec"
)

func configureCommand(cmd *exec.Cmd) {}

// Windows has no portable graceful signal for console-less children
func terminateProcess(process *os.Process) error {
	return killProcess(process)
}

func killProcess(process *os.Process) error {
	if process == nil {
		return nil
	}
	return process.Kill()
}
