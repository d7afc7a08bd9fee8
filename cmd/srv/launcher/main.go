package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-launch-go/pkg/launcher"
	"github.com/core-tools/hsu-launch-go/pkg/logging"
	zaplogging "github.com/core-tools/hsu-launch-go/pkg/logging/zap"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config          string        `long:"config" short:"c" description:"Launch descriptor file path (YAML, JSON or TOML)" required:"true"`
	LogLevel        string        `long:"log-level" description:"Log level: debug, info, warn, error" default:"info"`
	RunDuration     int           `long:"run-duration" description:"Duration in seconds to run (debug feature)"`
	GracefulTimeout time.Duration `long:"graceful-timeout" description:"Time between the terminate signal and a forced kill" default:"10s"`
	WatchDebounce   time.Duration `long:"watch-debounce" description:"Quiet period before a watched app restarts" default:"500ms"`
	PIDDir          string        `long:"pid-dir" description:"Directory for per-app PID files"`
	PIDScenario     string        `long:"pid-scenario" description:"Write PID files in the recommended layout" choice:"system" choice:"user" choice:"development"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-server , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(1)
	}

	zapLogger, err := zaplogging.NewZapSprintfLogger(opts.LogLevel)
	if err != nil {
		fmt.Printf("Logger setup failed: %v", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	logger := logging.NewLogger(logPrefix("hsu-launch"), zapLogger.LogFuncs())

	err = launcher.Run(context.Background(), launcher.RunOptions{
		DescriptorFile:  opts.Config,
		RunDuration:     opts.RunDuration,
		GracefulTimeout: opts.GracefulTimeout,
		WatchDebounce:   opts.WatchDebounce,
		PIDDir:          opts.PIDDir,
		PIDScenario:     opts.PIDScenario,
	}, logger)
	if err != nil {
		logger.Errorf("Failed to run: %v", err)
		zapLogger.Sync()
		os.Exit(1)
	}
}
