package supervisor

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/core-tools/hsu-launch-go/pkg/errors"
	"github.com/core-tools/hsu-launch-go/pkg/launchdesc"
	"github.com/core-tools/hsu-launch-go/pkg/logging"
	"github.com/core-tools/hsu-launch-go/pkg/processfile"

	"github.com/google/uuid"
)

// Supervisor starts processes described by validated AppSpecs
type Supervisor interface {
	// Spawn starts the process with the AppSpec's working directory as its
	// current directory and the AppSpec's environment merged over the inherited one.
	// ctx bounds the spawn call only; the process lives until it exits or Stop is called.
	Spawn(ctx context.Context, spec launchdesc.AppSpec) (ProcessHandle, error)
}

// ProcessHandle tracks one spawned app across watch-triggered restarts
type ProcessHandle interface {
	ID() string
	Name() string
	PID() int
	State() ProcessState
	Restarts() int

	// ExitCode is -1 until the process has exited on its own
	ExitCode() int

	// Done is closed once the handle reaches a terminal state
	Done() <-chan struct{}

	Diagnostics() ProcessDiagnostics

	// Stop terminates the process gracefully and waits for it, or for ctx
	Stop(ctx context.Context) error
}

// ProcessDiagnostics is a point-in-time snapshot of a handle
type ProcessDiagnostics struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	PID         int               `json:"pid"`
	State       ProcessState      `json:"state"`
	Restarts    int               `json:"restarts"`
	ExitCode    int               `json:"exit_code"`
	StartedAt   time.Time         `json:"started_at"`
	LastError   string            `json:"last_error,omitempty"`
	Transitions []StateTransition `json:"transitions,omitempty"`
}

const (
	DefaultGracefulTimeout = 10 * time.Second
	DefaultWatchDebounce   = 500 * time.Millisecond
)

type SupervisorOptions struct {
	// Time between the terminate signal and a forced kill
	GracefulTimeout time.Duration

	// Quiet period after the last file change before a watched app restarts
	WatchDebounce time.Duration

	// Inherited KEY=VALUE environment; nil means os.Environ() at spawn time
	BaseEnvironment []string

	// Child output destinations; nil forwards lines to the logger
	Stdout io.Writer
	Stderr io.Writer

	// PID files are written on every start and removed on exit when set
	PIDFiles *processfile.ProcessFileManager
}

type processSupervisor struct {
	options SupervisorOptions
	logger  logging.Logger
}

func NewProcessSupervisor(options SupervisorOptions, logger logging.Logger) Supervisor {
	if options.GracefulTimeout <= 0 {
		options.GracefulTimeout = DefaultGracefulTimeout
	}
	if options.WatchDebounce <= 0 {
		options.WatchDebounce = DefaultWatchDebounce
	}
	return &processSupervisor{
		options: options,
		logger:  logger,
	}
}

func (s *processSupervisor) Spawn(ctx context.Context, spec launchdesc.AppSpec) (ProcessHandle, error) {
	if ctx == nil {
		return nil, errors.NewValidationError("context cannot be nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewProcessError("spawn cancelled", err).WithContext("app_name", spec.Name)
	}

	spec = spec.Clone()

	info, err := os.Stat(spec.WorkingDirectory)
	if err != nil {
		return nil, errors.NewProcessError("working directory is not accessible", err).
			WithContext("app_name", spec.Name).WithContext("working_directory", spec.WorkingDirectory)
	}
	if !info.IsDir() {
		return nil, errors.NewProcessError("working directory is not a directory", nil).
			WithContext("app_name", spec.Name).WithContext("working_directory", spec.WorkingDirectory)
	}

	baseEnvironment := s.options.BaseEnvironment
	if baseEnvironment == nil {
		baseEnvironment = os.Environ()
	}

	h := &processHandle{
		id:       uuid.New().String(),
		spec:     spec,
		options:  s.options,
		logger:   s.logger,
		env:      MergeEnvironment(baseEnvironment, spec.Environment),
		state:    newStateMachine(),
		exitCode: -1,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	s.logger.Infof("Spawning app, name: %s, id: %s, command: %s, cwd: %s, watch: %t",
		spec.Name, h.id, spec.CommandLine(), spec.WorkingDirectory, spec.Watch)

	if spec.Watch {
		watcher, err := newTreeWatcher(spec.WorkingDirectory, spec.IgnoreWatch, s.options.WatchDebounce, s.logger)
		if err != nil {
			return nil, errors.NewProcessError("failed to watch working directory", err).
				WithContext("app_name", spec.Name).WithContext("working_directory", spec.WorkingDirectory)
		}
		h.watcher = watcher
	}

	exitCh, err := h.startProcess()
	if err != nil {
		h.closeWatcher()
		h.setFailed(err)
		return nil, errors.NewProcessError("failed to start app", err).
			WithContext("app_name", spec.Name).WithContext("command", spec.Command)
	}
	h.transition(ProcessStateRunning, "start")

	s.logger.Infof("App spawned, name: %s, id: %s, pid: %d", spec.Name, h.id, h.PID())

	go h.run(exitCh)
	return h, nil
}
