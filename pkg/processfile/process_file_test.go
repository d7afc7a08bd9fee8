package processfile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/core-tools/hsu-launch-go/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ProcessFileMockLogger is a no-op logger for tests
type ProcessFileMockLogger struct{}

func (m *ProcessFileMockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *ProcessFileMockLogger) Debugf(format string, args ...interface{})               {}
func (m *ProcessFileMockLogger) Infof(format string, args ...interface{})                {}
func (m *ProcessFileMockLogger) Warnf(format string, args ...interface{})                {}
func (m *ProcessFileMockLogger) Errorf(format string, args ...interface{})               {}

func TestNewProcessFileManager_WithDefaults(t *testing.T) {
	manager := NewProcessFileManager(ProcessFileConfig{}, &ProcessFileMockLogger{})

	assert.NotNil(t, manager)
	assert.Equal(t, DefaultAppName, manager.config.AppName)
	assert.Equal(t, UserService, manager.config.ServiceContext)
}

func TestGeneratePIDFilePath_WithCustomBaseDirectory(t *testing.T) {
	customPath := "/custom/path"
	if runtime.GOOS == "windows" {
		customPath = "C:\\custom\\path"
	}

	manager := NewProcessFileManager(ProcessFileConfig{
		BaseDirectory:   customPath,
		ServiceContext:  SystemService,
		AppName:         "test-app",
		UseSubdirectory: true,
	}, &ProcessFileMockLogger{})

	path := manager.GeneratePIDFilePath("bash-runner-worker")

	assert.Equal(t, filepath.Join(customPath, "test-app", "bash-runner-worker.pid"), path)
}

func TestGeneratePIDFilePath_WithoutSubdirectory(t *testing.T) {
	manager := NewProcessFileManager(ProcessFileConfig{
		BaseDirectory:   "/tmp/test",
		AppName:         "test-app",
		UseSubdirectory: false,
	}, &ProcessFileMockLogger{})

	path := manager.GeneratePIDFilePath("w1")

	assert.Equal(t, filepath.Join("/tmp/test", "w1.pid"), path)
	assert.NotContains(t, path, "test-app")
}

func TestGeneratePIDFilePath_DefaultContexts(t *testing.T) {
	for _, context := range []ServiceContext{SystemService, UserService, SessionService} {
		t.Run(string(context), func(t *testing.T) {
			manager := NewProcessFileManager(ProcessFileConfig{
				ServiceContext:  context,
				AppName:         "test-app",
				UseSubdirectory: true,
			}, &ProcessFileMockLogger{})

			path := manager.GeneratePIDFilePath("w1")

			assert.True(t, filepath.IsAbs(path), path)
			assert.Contains(t, path, "test-app")
			assert.Equal(t, "w1.pid", filepath.Base(path))
		})
	}
}

func TestGeneratePIDFilePath_SanitizesProcessID(t *testing.T) {
	manager := NewProcessFileManager(ProcessFileConfig{BaseDirectory: "/run/hsu"}, &ProcessFileMockLogger{})

	tests := []struct {
		processID string
		expected  string
	}{
		{"worker", "worker.pid"},
		{"../../etc/passwd", "_.._etc_passwd.pid"},
		{"bash runner", "bash_runner.pid"},
		{"..", "_.pid"},
	}

	for _, tt := range tests {
		t.Run(tt.processID, func(t *testing.T) {
			path := manager.GeneratePIDFilePath(tt.processID)
			assert.Equal(t, filepath.Join("/run/hsu", tt.expected), path)
		})
	}
}

func TestGetRecommendedProcessFileConfig(t *testing.T) {
	testCases := []struct {
		scenario        string
		appName         string
		expectedContext ServiceContext
		expectedAppName string
	}{
		{"system", "my-app", SystemService, "my-app"},
		{"user", "", UserService, DefaultAppName},
		{"development", "dev", SessionService, "dev"},
		{"unknown", "x", UserService, "x"},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			config := GetRecommendedProcessFileConfig(tc.scenario, tc.appName)

			assert.Equal(t, tc.expectedContext, config.ServiceContext)
			assert.Equal(t, tc.expectedAppName, config.AppName)
			assert.True(t, config.UseSubdirectory)
		})
	}
}

func TestValidateDirectory_CreateDirectory(t *testing.T) {
	testDir := filepath.Join(t.TempDir(), "non-existent")
	manager := NewProcessFileManager(ProcessFileConfig{BaseDirectory: testDir}, &ProcessFileMockLogger{})

	err := ValidateDirectory(manager.GeneratePIDFilePath("w1"))

	assert.NoError(t, err)
	assert.DirExists(t, testDir)
}

func TestProcessFileManager_WriteReadRemove(t *testing.T) {
	manager := NewProcessFileManager(ProcessFileConfig{
		BaseDirectory:   t.TempDir(),
		AppName:         "test-app",
		UseSubdirectory: true,
	}, &ProcessFileMockLogger{})

	require.NoError(t, manager.WritePIDFile("w1", 12345))

	pidFile := manager.GeneratePIDFilePath("w1")
	assert.FileExists(t, pidFile)
	_, err := os.Stat(pidFile + ".tmp")
	assert.True(t, os.IsNotExist(err))

	content, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	assert.Equal(t, "12345\n", string(content))

	pid, err := manager.ReadPIDFile("w1")
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)

	require.NoError(t, manager.RemovePIDFile("w1"))
	assert.NoFileExists(t, pidFile)

	// removing twice is fine
	assert.NoError(t, manager.RemovePIDFile("w1"))
}

func TestProcessFileManager_ReadPIDFile_Invalid(t *testing.T) {
	manager := NewProcessFileManager(ProcessFileConfig{BaseDirectory: t.TempDir()}, &ProcessFileMockLogger{})

	_, err := manager.ReadPIDFile("absent")
	assert.True(t, errors.IsIOError(err))

	require.NoError(t, os.WriteFile(manager.GeneratePIDFilePath("garbage"), []byte("not-a-pid\n"), 0o644))
	_, err = manager.ReadPIDFile("garbage")
	assert.True(t, errors.IsValidationError(err))
}

func TestProcessFileManager_WritePIDFile_InvalidDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission semantics differ on windows")
	}

	// a regular file where the directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	manager := NewProcessFileManager(ProcessFileConfig{BaseDirectory: filepath.Join(blocker, "pids")}, &ProcessFileMockLogger{})

	err := manager.WritePIDFile("w1", 1)

	assert.Error(t, err)
	assert.True(t, errors.IsIOError(err))
}
