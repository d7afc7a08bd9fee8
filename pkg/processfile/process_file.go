package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-launch-go/pkg/errors"
	"github.com/core-tools/hsu-launch-go/pkg/logging"
)

// ServiceContext selects the default base directory for process files
type ServiceContext string

const (
	SystemService  ServiceContext = "system"
	UserService    ServiceContext = "user"
	SessionService ServiceContext = "session"
)

const DefaultAppName = "hsu-launch"

type ProcessFileConfig struct {
	BaseDirectory   string         `yaml:"base_directory,omitempty"` // Overrides the context default
	ServiceContext  ServiceContext `yaml:"service_context,omitempty"`
	AppName         string         `yaml:"app_name,omitempty"`
	UseSubdirectory bool           `yaml:"use_subdirectory,omitempty"` // Place files under <base>/<app_name>
}

type ProcessFileManager struct {
	config ProcessFileConfig
	logger logging.Logger
}

func NewProcessFileManager(config ProcessFileConfig, logger logging.Logger) *ProcessFileManager {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	if config.ServiceContext == "" {
		config.ServiceContext = UserService
	}
	return &ProcessFileManager{
		config: config,
		logger: logger,
	}
}

// GetRecommendedProcessFileConfig returns the layout for "system", "user"
// or "development" deployments; anything else is treated as "user".
func GetRecommendedProcessFileConfig(scenario, appName string) ProcessFileConfig {
	if appName == "" {
		appName = DefaultAppName
	}

	switch scenario {
	case "system":
		return ProcessFileConfig{ServiceContext: SystemService, AppName: appName, UseSubdirectory: true}
	case "development":
		return ProcessFileConfig{ServiceContext: SessionService, AppName: appName, UseSubdirectory: true}
	default:
		return ProcessFileConfig{ServiceContext: UserService, AppName: appName, UseSubdirectory: true}
	}
}

func (m *ProcessFileManager) GeneratePIDFilePath(processID string) string {
	return filepath.Join(m.directory(), sanitizeProcessID(processID)+".pid")
}

// WritePIDFile writes "<pid>\n" through a temp file and rename
func (m *ProcessFileManager) WritePIDFile(processID string, pid int) error {
	pidFile := m.GeneratePIDFilePath(processID)

	if err := ValidateDirectory(pidFile); err != nil {
		return err
	}

	tmpFile := pidFile + ".tmp"
	if err := os.WriteFile(tmpFile, []byte(fmt.Sprintf("%d\n", pid)), 0o644); err != nil {
		return errors.NewIOError("failed to write PID file", err).WithContext("pid_file", pidFile)
	}
	if err := os.Rename(tmpFile, pidFile); err != nil {
		_ = os.Remove(tmpFile)
		return errors.NewIOError("failed to move PID file into place", err).WithContext("pid_file", pidFile)
	}

	m.logger.Debugf("PID file written, id: %s, pid: %d, file: %s", processID, pid, pidFile)
	return nil
}

func (m *ProcessFileManager) ReadPIDFile(processID string) (int, error) {
	pidFile := m.GeneratePIDFilePath(processID)

	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", pidFile)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, errors.NewValidationError("invalid PID file content", err).WithContext("pid_file", pidFile)
	}
	return pid, nil
}

// RemovePIDFile deletes the PID file; a file that is already gone is not an error
func (m *ProcessFileManager) RemovePIDFile(processID string) error {
	pidFile := m.GeneratePIDFilePath(processID)

	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove PID file", err).WithContext("pid_file", pidFile)
	}

	m.logger.Debugf("PID file removed, id: %s, file: %s", processID, pidFile)
	return nil
}

// ValidateDirectory ensures the parent directory of filePath exists
func ValidateDirectory(filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIOError("failed to create process file directory", err).WithContext("directory", dir)
	}
	return nil
}

func (m *ProcessFileManager) directory() string {
	base := m.config.BaseDirectory
	if base == "" {
		base = defaultBaseDirectory(m.config.ServiceContext)
	}
	if m.config.UseSubdirectory {
		return filepath.Join(base, m.config.AppName)
	}
	return base
}

func defaultBaseDirectory(context ServiceContext) string {
	switch context {
	case SystemService:
		if runtime.GOOS == "windows" {
			if programData := os.Getenv("ProgramData"); programData != "" {
				return programData
			}
			return "C:\\ProgramData"
		}
		return "/var/run"
	case SessionService:
		return os.TempDir()
	default:
		if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" && runtime.GOOS != "windows" {
			return runtimeDir
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "state")
		}
		return os.TempDir()
	}
}

// sanitizeProcessID keeps process file names inside the directory
func sanitizeProcessID(processID string) string {
	var sb strings.Builder
	for _, r := range processID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	id := strings.Trim(sb.String(), ".")
	if id == "" {
		return "_"
	}
	return id
}
