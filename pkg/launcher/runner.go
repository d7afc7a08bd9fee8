package launcher

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/core-tools/hsu-launch-go/pkg/errors"
	"github.com/core-tools/hsu-launch-go/pkg/launchdesc"
	"github.com/core-tools/hsu-launch-go/pkg/logging"
	"github.com/core-tools/hsu-launch-go/pkg/processfile"
	"github.com/core-tools/hsu-launch-go/pkg/supervisor"

	"github.com/coreos/go-systemd/v22/daemon"
)

type RunOptions struct {
	DescriptorFile  string
	RunDuration     int // seconds, 0 runs until signalled
	GracefulTimeout time.Duration
	WatchDebounce   time.Duration
	PIDDir          string

	// PIDScenario picks the recommended PID file layout: system, user or development.
	// PID files are written when either PIDScenario or PIDDir is set; PIDDir wins as the directory.
	PIDScenario string

	// Optional overrides; defaults are the process supervisor and sd_notify
	Supervisor supervisor.Supervisor
	Notifier   Notifier
}

// Launcher keeps the apps of one descriptor file running
type Launcher struct {
	options    RunOptions
	logger     logging.Logger
	supervisor supervisor.Supervisor
	notifier   Notifier

	handles []supervisor.ProcessHandle
	mutex   sync.Mutex
}

func NewLauncher(options RunOptions, logger logging.Logger) *Launcher {
	if options.GracefulTimeout <= 0 {
		options.GracefulTimeout = supervisor.DefaultGracefulTimeout
	}
	if options.WatchDebounce <= 0 {
		options.WatchDebounce = supervisor.DefaultWatchDebounce
	}

	sup := options.Supervisor
	if sup == nil {
		supervisorOptions := supervisor.SupervisorOptions{
			GracefulTimeout: options.GracefulTimeout,
			WatchDebounce:   options.WatchDebounce,
		}
		if config, enabled := pidFileConfig(options); enabled {
			supervisorOptions.PIDFiles = processfile.NewProcessFileManager(config, logger)
		}
		sup = supervisor.NewProcessSupervisor(supervisorOptions, logger)
	}

	notifier := options.Notifier
	if notifier == nil {
		notifier = NewSystemdNotifier(logger)
	}

	return &Launcher{
		options:    options,
		logger:     logger,
		supervisor: sup,
		notifier:   notifier,
	}
}

func pidFileConfig(options RunOptions) (processfile.ProcessFileConfig, bool) {
	if options.PIDDir == "" && options.PIDScenario == "" {
		return processfile.ProcessFileConfig{}, false
	}

	config := processfile.GetRecommendedProcessFileConfig(options.PIDScenario, processfile.DefaultAppName)
	if options.PIDDir != "" {
		config.BaseDirectory = options.PIDDir
		config.UseSubdirectory = false
	}
	return config, true
}

// Run launches every app in the descriptor file and blocks until a
// termination signal, the run duration or ctx ends it. SIGHUP reloads the file.
func Run(ctx context.Context, options RunOptions, logger logging.Logger) error {
	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig, os.Interrupt)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	}
	defer signal.Stop(sig)

	return NewLauncher(options, logger).Run(ctx, sig)
}

func (l *Launcher) Run(ctx context.Context, signals <-chan os.Signal) error {
	if ctx == nil {
		return errors.NewValidationError("context cannot be nil", nil)
	}

	l.logger.Infof("Launcher starting...")
	l.logger.Infof("Platform: OS=%s, Arch=%s, CPUs=%d, Go=%s",
		runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.Version())
	l.logger.Infof("Using DESCRIPTOR FILE: %s", l.options.DescriptorFile)

	operationCtx := ctx
	if l.options.RunDuration > 0 {
		l.logger.Infof("Using RUN DURATION of %d seconds", l.options.RunDuration)
		var cancel context.CancelFunc
		operationCtx, cancel = context.WithTimeout(ctx, time.Duration(l.options.RunDuration)*time.Second)
		defer cancel()
	}

	descriptor, err := l.load()
	if err != nil {
		return err
	}

	l.spawnAll(operationCtx, descriptor.Apps)
	l.notifier.Notify(daemon.SdNotifyReady)
	l.logger.Infof("Launcher is ready, apps: %d", len(l.Handles()))

	for {
		select {
		case receivedSignal := <-signals:
			if isReloadSignal(receivedSignal) {
				l.reload(operationCtx)
				continue
			}
			l.logger.Infof("Launcher received signal: %v", receivedSignal)
		case <-operationCtx.Done():
			l.logger.Infof("Launcher context done: %v", operationCtx.Err())
		}
		break
	}

	l.notifier.Notify(daemon.SdNotifyStopping)
	l.stopAll()
	l.logger.Infof("Launcher stopped")
	return nil
}

// Handles returns the handles of the current generation of apps
func (l *Launcher) Handles() []supervisor.ProcessHandle {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]supervisor.ProcessHandle(nil), l.handles...)
}

// ValidateFile loads and validates a descriptor file without spawning anything
func ValidateFile(path string) (*launchdesc.Descriptor, error) {
	if path == "" {
		return nil, errors.NewValidationError("descriptor file path cannot be empty", nil)
	}
	return launchdesc.DecodeFile(path)
}

func (l *Launcher) load() (*launchdesc.Descriptor, error) {
	descriptor, err := ValidateFile(l.options.DescriptorFile)
	if err != nil {
		return nil, err
	}
	for _, key := range descriptor.UnknownKeys {
		l.logger.Warnf("Ignoring unsupported descriptor key: %s", key)
	}
	l.logger.Infof("Descriptor loaded successfully from %s, apps: %d", descriptor.Source, len(descriptor.Apps))
	return descriptor, nil
}

func (l *Launcher) spawnAll(ctx context.Context, apps []launchdesc.AppSpec) {
	handles := make([]supervisor.ProcessHandle, 0, len(apps))
	for _, app := range apps {
		handle, err := l.supervisor.Spawn(ctx, app)
		if err != nil {
			l.logger.Errorf("Failed to start app %s: %v", app.Name, err)
			// Continue with other apps rather than failing completely
			continue
		}
		l.logger.Infof("Started app: %s, pid: %d", app.Name, handle.PID())
		handles = append(handles, handle)
	}

	l.mutex.Lock()
	l.handles = handles
	l.mutex.Unlock()
}

// reload replaces the running apps only when the file still loads cleanly
func (l *Launcher) reload(ctx context.Context) {
	l.logger.Infof("Reloading descriptor file: %s", l.options.DescriptorFile)

	descriptor, err := l.load()
	if err != nil {
		l.logger.Errorf("Reload rejected, keeping current apps: %v", err)
		return
	}

	l.notifier.Notify(daemon.SdNotifyReloading)
	l.stopAll()
	l.spawnAll(ctx, descriptor.Apps)
	l.notifier.Notify(daemon.SdNotifyReady)
	l.logger.Infof("Reload complete, apps: %d", len(l.Handles()))
}

func (l *Launcher) stopAll() {
	handles := l.Handles()

	// Extra time over the graceful timeout covers the forced kill
	ctx, cancel := context.WithTimeout(context.Background(), l.options.GracefulTimeout+5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, handle := range handles {
		wg.Add(1)
		go func(handle supervisor.ProcessHandle) {
			defer wg.Done()
			if err := handle.Stop(ctx); err != nil {
				l.logger.Errorf("Failed to stop app %s: %v", handle.Name(), err)
			}
		}(handle)
	}
	wg.Wait()

	l.mutex.Lock()
	l.handles = nil
	l.mutex.Unlock()
}
