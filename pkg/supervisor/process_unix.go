//go:build !windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// configureCommand gives each app its own process group so stop reaches its children
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcess(process *os.Process) error {
	return signalGroup(process, syscall.SIGTERM)
}

func killProcess(process *os.Process) error {
	return signalGroup(process, syscall.SIGKILL)
}

// signalGroup tries the process group first, then the process itself
func signalGroup(process *os.Process, signal syscall.Signal) error {
	if process == nil {
		return nil
	}
	if process.Pid > 0 {
		if err := syscall.Kill(-process.Pid, signal); err == nil {
			return nil
		}
	}
	return process.Signal(signal)
}
