package zaplogging

import (
	"fmt"
	"strings"

	"github.com/core-tools/hsu-launch-go/pkg/errors"
	"github.com/core-tools/hsu-launch-go/pkg/logging"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapSprintfLogger adapts a zap sugared logger to the printf-style logging.LogFuncs
type ZapSprintfLogger struct {
	sugar *zap.SugaredLogger
}

// ParseLevel maps the launcher's level names onto zap levels
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, errors.NewValidationError(
			fmt.Sprintf("invalid log level: %s", level),
			nil,
		).WithContext("valid_levels", "debug, info, warn, error")
	}
}

// NewZapSprintfLogger builds a console-encoded logger writing to stderr
func NewZapSprintfLogger(level string) (*ZapSprintfLogger, error) {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	config := zap.Config{
		Level:             zap.NewAtomicLevelAt(zapLevel),
		Development:       false,
		DisableCaller:     true,
		DisableStacktrace: true,
		Encoding:          "console",
		EncoderConfig:     encoderConfig,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}

	base, err := config.Build()
	if err != nil {
		return nil, errors.NewInternalError("failed to build zap logger", err)
	}
	return NewZapSprintfLoggerFrom(base), nil
}

// NewZapSprintfLoggerFrom wraps an existing zap logger, used by tests with an observer core
func NewZapSprintfLoggerFrom(base *zap.Logger) *ZapSprintfLogger {
	return &ZapSprintfLogger{sugar: base.Sugar()}
}

func (l *ZapSprintfLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *ZapSprintfLogger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *ZapSprintfLogger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *ZapSprintfLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// LogFuncs exposes the logger for logging.NewLogger
func (l *ZapSprintfLogger) LogFuncs() logging.LogFuncs {
	return logging.LogFuncs{
		Debugf: l.Debugf,
		Infof:  l.Infof,
		Warnf:  l.Warnf,
		Errorf: l.Errorf,
	}
}

// Sync flushes buffered entries; errors from syncing stderr are ignored
func (l *ZapSprintfLogger) Sync() {
	_ = l.sugar.Sync()
}
