package supervisor

import (
	"context"
	stderrors "errors"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/core-tools/hsu-launch-go/pkg/errors"
	"github.com/core-tools/hsu-launch-go/pkg/launchdesc"
	"github.com/core-tools/hsu-launch-go/pkg/logcollection"
	"github.com/core-tools/hsu-launch-go/pkg/logging"
)

type processHandle struct {
	id      string
	spec    launchdesc.AppSpec
	options SupervisorOptions
	logger  logging.Logger
	env     []string
	watcher *treeWatcher

	// Guarded by mutex
	state     *stateMachine
	cmd       *exec.Cmd
	outputs   []io.Closer
	pid       int
	restarts  int
	exitCode  int
	startedAt time.Time
	lastError error
	mutex     sync.RWMutex

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (h *processHandle) ID() string {
	return h.id
}

func (h *processHandle) Name() string {
	return h.spec.Name
}

func (h *processHandle) PID() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.pid
}

func (h *processHandle) State() ProcessState {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.state.Current()
}

func (h *processHandle) Restarts() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.restarts
}

func (h *processHandle) ExitCode() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.exitCode
}

func (h *processHandle) Done() <-chan struct{} {
	return h.done
}

func (h *processHandle) Diagnostics() ProcessDiagnostics {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	diagnostics := ProcessDiagnostics{
		ID:          h.id,
		Name:        h.spec.Name,
		PID:         h.pid,
		State:       h.state.Current(),
		Restarts:    h.restarts,
		ExitCode:    h.exitCode,
		StartedAt:   h.startedAt,
		Transitions: h.state.History(),
	}
	if h.lastError != nil {
		diagnostics.LastError = h.lastError.Error()
	}
	return diagnostics
}

func (h *processHandle) Stop(ctx context.Context) error {
	if ctx == nil {
		return errors.NewValidationError("context cannot be nil", nil)
	}

	h.stopOnce.Do(func() {
		h.logger.Infof("Stopping app, name: %s, id: %s", h.spec.Name, h.id)
		close(h.stopCh)
	})

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return errors.NewProcessError("timed out waiting for app to stop", ctx.Err()).
			WithContext("app_name", h.spec.Name).WithContext("id", h.id)
	}
}

// startProcess launches one child and returns the channel its Wait result arrives on
func (h *processHandle) startProcess() (<-chan error, error) {
	cmd := exec.Command(resolveCommand(h.spec.Command, h.spec.WorkingDirectory), h.spec.Args...)
	cmd.Dir = h.spec.WorkingDirectory
	cmd.Env = h.env

	var outputs []io.Closer
	if h.options.Stdout != nil {
		cmd.Stdout = h.options.Stdout
	} else {
		stdout := logcollection.NewLineWriter(h.spec.Name, logcollection.StreamStdout, h.logger)
		cmd.Stdout = stdout
		outputs = append(outputs, stdout)
	}
	if h.options.Stderr != nil {
		cmd.Stderr = h.options.Stderr
	} else {
		stderr := logcollection.NewLineWriter(h.spec.Name, logcollection.StreamStderr, h.logger)
		cmd.Stderr = stderr
		outputs = append(outputs, stderr)
	}

	// Bounds the wait for output copying when a grandchild keeps the pipes open
	cmd.WaitDelay = time.Second

	configureCommand(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h.mutex.Lock()
	h.cmd = cmd
	h.outputs = outputs
	h.pid = cmd.Process.Pid
	h.startedAt = time.Now()
	h.mutex.Unlock()

	if h.options.PIDFiles != nil {
		if err := h.options.PIDFiles.WritePIDFile(h.spec.Name, cmd.Process.Pid); err != nil {
			// The process is already running
			h.logger.Errorf("Failed to write PID file, name: %s, error: %v", h.spec.Name, err)
		}
	}

	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()
	return exitCh, nil
}

// resolveCommand anchors relative command paths at the working directory.
// Bare names are left for PATH lookup.
func resolveCommand(command, workingDirectory string) string {
	if filepath.IsAbs(command) || !strings.ContainsAny(command, "/"+string(filepath.Separator)) {
		return command
	}
	return filepath.Join(workingDirectory, command)
}

func (h *processHandle) run(exitCh <-chan error) {
	defer close(h.done)
	defer h.cleanup()

	for {
		select {
		case err := <-exitCh:
			h.recordExit(err)
			return

		case <-h.stopCh:
			h.transition(ProcessStateStopping, "stop")
			h.terminate(exitCh)
			h.transition(ProcessStateStopped, "stop")
			h.logger.Infof("App stopped, name: %s, id: %s", h.spec.Name, h.id)
			return

		case path := <-h.watchEvents():
			h.logger.Infof("File change detected, restarting app, name: %s, id: %s, path: %s", h.spec.Name, h.id, path)
			h.transition(ProcessStateRestarting, "watch")
			h.terminate(exitCh)

			newExitCh, err := h.startProcess()
			if err != nil {
				h.logger.Errorf("Failed to restart app, name: %s, id: %s, error: %v", h.spec.Name, h.id, err)
				h.setFailed(err)
				return
			}
			exitCh = newExitCh

			h.mutex.Lock()
			h.restarts++
			h.mutex.Unlock()
			h.transition(ProcessStateRunning, "watch")
			h.logger.Infof("App restarted, name: %s, id: %s, pid: %d, restarts: %d", h.spec.Name, h.id, h.PID(), h.Restarts())
		}
	}
}

// terminate signals the running child and waits for it, force killing after the graceful timeout
func (h *processHandle) terminate(exitCh <-chan error) {
	h.mutex.RLock()
	cmd := h.cmd
	h.mutex.RUnlock()

	if err := terminateProcess(cmd.Process); err != nil {
		h.logger.Debugf("Terminate signal failed, name: %s, error: %v", h.spec.Name, err)
	}

	timer := time.NewTimer(h.options.GracefulTimeout)
	defer timer.Stop()

	select {
	case <-exitCh:
	case <-timer.C:
		h.logger.Warnf("App did not exit within %v, killing, name: %s, id: %s", h.options.GracefulTimeout, h.spec.Name, h.id)
		if err := killProcess(cmd.Process); err != nil {
			h.logger.Errorf("Failed to kill app, name: %s, error: %v", h.spec.Name, err)
		}
		<-exitCh
	}
	h.flushOutputs()
}

func (h *processHandle) recordExit(err error) {
	h.flushOutputs()

	exitCode := 0
	if err != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}

	h.mutex.Lock()
	h.exitCode = exitCode
	if err != nil {
		h.lastError = err
	}
	h.mutex.Unlock()

	if err == nil {
		h.transition(ProcessStateExited, "exit")
		h.logger.Infof("App exited, name: %s, id: %s, exit_code: 0", h.spec.Name, h.id)
		return
	}
	h.transition(ProcessStateFailed, "exit")
	h.logger.Errorf("App failed, name: %s, id: %s, exit_code: %d, error: %v", h.spec.Name, h.id, exitCode, err)
}

func (h *processHandle) setFailed(err error) {
	h.mutex.Lock()
	h.lastError = err
	h.mutex.Unlock()
	h.transition(ProcessStateFailed, "start")
}

func (h *processHandle) transition(to ProcessState, operation string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err := h.state.Transition(to, operation); err != nil {
		h.logger.Errorf("Unexpected state transition, name: %s, id: %s, error: %v", h.spec.Name, h.id, err)
	}
}

func (h *processHandle) watchEvents() <-chan string {
	if h.watcher == nil {
		return nil
	}
	return h.watcher.Events()
}

func (h *processHandle) flushOutputs() {
	h.mutex.Lock()
	outputs := h.outputs
	h.outputs = nil
	h.mutex.Unlock()

	for _, output := range outputs {
		_ = output.Close()
	}
}

func (h *processHandle) closeWatcher() {
	if h.watcher != nil {
		h.watcher.Close()
	}
}

func (h *processHandle) cleanup() {
	h.closeWatcher()
	if h.options.PIDFiles != nil {
		if err := h.options.PIDFiles.RemovePIDFile(h.spec.Name); err != nil {
			h.logger.Warnf("Failed to remove PID file, name: %s, error: %v", h.spec.Name, err)
		}
	}
}
