//go:build !windows

package supervisor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-launch-go/pkg/errors"
	"github.com/core-tools/hsu-launch-go/pkg/launchdesc"
	"github.com/core-tools/hsu-launch-go/pkg/processfile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SupervisorMockLogger is a no-op logger for tests
type SupervisorMockLogger struct{}

func (m *SupervisorMockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *SupervisorMockLogger) Debugf(format string, args ...interface{})               {}
func (m *SupervisorMockLogger) Infof(format string, args ...interface{})                {}
func (m *SupervisorMockLogger) Warnf(format string, args ...interface{})                {}
func (m *SupervisorMockLogger) Errorf(format string, args ...interface{})               {}

// syncBuffer is written by exec's copy goroutines while tests poll it
type syncBuffer struct {
	mutex sync.Mutex
	buf   bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buf.String()
}

func tempDir(t *testing.T) string {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func waitDone(t *testing.T, handle ProcessHandle) {
	select {
	case <-handle.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("app %s did not finish", handle.Name())
	}
}

func shellSpec(name, dir, script string) launchdesc.AppSpec {
	return launchdesc.AppSpec{
		Name:             name,
		WorkingDirectory: dir,
		Command:          "/bin/sh",
		Args:             []string{"-c", script},
	}
}

func TestSpawn_UsesWorkingDirectoryAndEnvironment(t *testing.T) {
	dir := tempDir(t)
	stdout := &syncBuffer{}
	sup := NewProcessSupervisor(SupervisorOptions{
		BaseEnvironment: []string{"PATH=/usr/bin:/bin", "INHERITED=yes"},
		Stdout:          stdout,
	}, &SupervisorMockLogger{})

	spec := shellSpec("api", dir, `pwd; echo "port=$PORT"; echo "inherited=$INHERITED"`)
	spec.Environment = map[string]string{"PORT": "8080"}

	handle, err := sup.Spawn(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "api", handle.Name())
	assert.NotEmpty(t, handle.ID())
	assert.Greater(t, handle.PID(), 0)

	waitDone(t, handle)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, dir, lines[0])
	assert.Equal(t, "port=8080", lines[1])
	assert.Equal(t, "inherited=yes", lines[2])

	assert.Equal(t, ProcessStateExited, handle.State())
	assert.Equal(t, 0, handle.ExitCode())
}

func TestSpawn_EnvironmentOverridesInherited(t *testing.T) {
	stdout := &syncBuffer{}
	sup := NewProcessSupervisor(SupervisorOptions{
		BaseEnvironment: []string{"MODE=inherited"},
		Stdout:          stdout,
	}, &SupervisorMockLogger{})

	spec := shellSpec("mode", tempDir(t), `echo "$MODE"`)
	spec.Environment = map[string]string{"MODE": "declared"}

	handle, err := sup.Spawn(context.Background(), spec)
	require.NoError(t, err)
	waitDone(t, handle)

	assert.Equal(t, "declared\n", stdout.String())
}

func TestSpawn_ArgumentsPassedVerbatim(t *testing.T) {
	stdout := &syncBuffer{}
	sup := NewProcessSupervisor(SupervisorOptions{Stdout: stdout}, &SupervisorMockLogger{})

	spec := launchdesc.AppSpec{
		Name:             "printf",
		WorkingDirectory: tempDir(t),
		Command:          "/bin/sh",
		Args:             []string{"-c", `printf '%s|' "$@"`, "sh", "a b", "$HOME", ""},
	}

	handle, err := sup.Spawn(context.Background(), spec)
	require.NoError(t, err)
	waitDone(t, handle)

	assert.Equal(t, "a b|$HOME||", stdout.String())
}

func TestSpawn_NonZeroExitIsFailed(t *testing.T) {
	sup := NewProcessSupervisor(SupervisorOptions{}, &SupervisorMockLogger{})

	handle, err := sup.Spawn(context.Background(), shellSpec("crash", tempDir(t), "exit 3"))
	require.NoError(t, err)
	waitDone(t, handle)

	assert.Equal(t, ProcessStateFailed, handle.State())
	assert.Equal(t, 3, handle.ExitCode())

	diagnostics := handle.Diagnostics()
	assert.Equal(t, ProcessStateFailed, diagnostics.State)
	assert.NotEmpty(t, diagnostics.LastError)
	assert.NotEmpty(t, diagnostics.Transitions)
}

func TestSpawn_MissingWorkingDirectory(t *testing.T) {
	sup := NewProcessSupervisor(SupervisorOptions{}, &SupervisorMockLogger{})

	spec := shellSpec("ghost", filepath.Join(tempDir(t), "missing"), "true")
	handle, err := sup.Spawn(context.Background(), spec)

	require.Error(t, err)
	assert.Nil(t, handle)
	assert.True(t, errors.IsProcessError(err))
}

func TestSpawn_WorkingDirectoryIsFile(t *testing.T) {
	dir := tempDir(t)
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	sup := NewProcessSupervisor(SupervisorOptions{}, &SupervisorMockLogger{})
	_, err := sup.Spawn(context.Background(), shellSpec("file", file, "true"))

	require.Error(t, err)
	assert.True(t, errors.IsProcessError(err))
}

func TestSpawn_MissingCommand(t *testing.T) {
	sup := NewProcessSupervisor(SupervisorOptions{}, &SupervisorMockLogger{})

	spec := launchdesc.AppSpec{
		Name:             "nope",
		WorkingDirectory: tempDir(t),
		Command:          "/definitely/not/a/command",
		Args:             []string{},
	}
	handle, err := sup.Spawn(context.Background(), spec)

	require.Error(t, err)
	assert.Nil(t, handle)
	assert.True(t, errors.IsProcessError(err))
}

func TestSpawn_CancelledContext(t *testing.T) {
	sup := NewProcessSupervisor(SupervisorOptions{}, &SupervisorMockLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sup.Spawn(ctx, shellSpec("late", tempDir(t), "true"))

	require.Error(t, err)
	assert.True(t, errors.IsProcessError(err))
}

func TestStop_TerminatesRunningApp(t *testing.T) {
	sup := NewProcessSupervisor(SupervisorOptions{}, &SupervisorMockLogger{})

	handle, err := sup.Spawn(context.Background(), shellSpec("sleeper", tempDir(t), "sleep 30"))
	require.NoError(t, err)
	assert.Equal(t, ProcessStateRunning, handle.State())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, handle.Stop(ctx))

	assert.Equal(t, ProcessStateStopped, handle.State())

	// Stop is idempotent
	require.NoError(t, handle.Stop(ctx))
}

func TestStop_KillsAfterGracefulTimeout(t *testing.T) {
	sup := NewProcessSupervisor(SupervisorOptions{
		GracefulTimeout: 200 * time.Millisecond,
	}, &SupervisorMockLogger{})

	spec := shellSpec("stubborn", tempDir(t), `trap '' TERM; while true; do sleep 0.1; done`)
	handle, err := sup.Spawn(context.Background(), spec)
	require.NoError(t, err)

	// Give the shell time to install its trap
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, handle.Stop(ctx))

	assert.Equal(t, ProcessStateStopped, handle.State())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSpawn_WritesAndRemovesPIDFile(t *testing.T) {
	pidDir := tempDir(t)
	pidFiles := processfile.NewProcessFileManager(processfile.ProcessFileConfig{
		BaseDirectory: pidDir,
	}, &SupervisorMockLogger{})

	sup := NewProcessSupervisor(SupervisorOptions{PIDFiles: pidFiles}, &SupervisorMockLogger{})

	handle, err := sup.Spawn(context.Background(), shellSpec("pidder", tempDir(t), "sleep 30"))
	require.NoError(t, err)

	pid, err := pidFiles.ReadPIDFile("pidder")
	require.NoError(t, err)
	assert.Equal(t, handle.PID(), pid)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, handle.Stop(ctx))

	_, err = os.Stat(pidFiles.GeneratePIDFilePath("pidder"))
	assert.True(t, os.IsNotExist(err))
}

func TestSpawn_WatchRestartsOnChange(t *testing.T) {
	dir := tempDir(t)
	stdout := &syncBuffer{}
	sup := NewProcessSupervisor(SupervisorOptions{
		WatchDebounce:   50 * time.Millisecond,
		GracefulTimeout: 2 * time.Second,
		Stdout:          stdout,
	}, &SupervisorMockLogger{})

	spec := shellSpec("watched", dir, "echo started; exec sleep 30")
	spec.Watch = true
	spec.IgnoreWatch = []string{"ignored.txt"}

	handle, err := sup.Spawn(context.Background(), spec)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = handle.Stop(ctx)
	}()

	require.Eventually(t, func() bool {
		return strings.Count(stdout.String(), "started") == 1
	}, 5*time.Second, 20*time.Millisecond)
	firstPID := handle.PID()

	// Ignored paths do not trigger a restart
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, handle.Restarts())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.js"), []byte("x"), 0644))

	require.Eventually(t, func() bool {
		return handle.Restarts() == 1 && handle.State() == ProcessStateRunning
	}, 5*time.Second, 20*time.Millisecond)
	assert.NotEqual(t, firstPID, handle.PID())

	require.Eventually(t, func() bool {
		return strings.Count(stdout.String(), "started") == 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSpawn_UnwatchedAppIgnoresChanges(t *testing.T) {
	dir := tempDir(t)
	sup := NewProcessSupervisor(SupervisorOptions{
		WatchDebounce: 50 * time.Millisecond,
	}, &SupervisorMockLogger{})

	spec := shellSpec("unwatched", dir, "exec sleep 30")
	spec.Watch = false

	handle, err := sup.Spawn(context.Background(), spec)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = handle.Stop(ctx)
	}()
	firstPID := handle.PID()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.js"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "src"), 0755))

	// Several debounce periods pass without a restart
	time.Sleep(400 * time.Millisecond)

	assert.Equal(t, 0, handle.Restarts())
	assert.Equal(t, ProcessStateRunning, handle.State())
	assert.Equal(t, firstPID, handle.PID())
}

func TestSpawn_WatchPicksUpNewDirectories(t *testing.T) {
	dir := tempDir(t)
	sup := NewProcessSupervisor(SupervisorOptions{
		WatchDebounce: 50 * time.Millisecond,
	}, &SupervisorMockLogger{})

	spec := shellSpec("nested", dir, "exec sleep 30")
	spec.Watch = true

	handle, err := sup.Spawn(context.Background(), spec)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = handle.Stop(ctx)
	}()

	sub := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.Eventually(t, func() bool {
		return handle.Restarts() == 1 && handle.State() == ProcessStateRunning
	}, 5*time.Second, 20*time.Millisecond)

	// Let the new directory be registered before writing into it
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "app.go"), []byte("x"), 0644))
	require.Eventually(t, func() bool {
		return handle.Restarts() == 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSpawn_RelativeCommandResolvesAgainstWorkingDirectory(t *testing.T) {
	dir := tempDir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0755))
	script := filepath.Join(dir, "bin", "hello.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho hello \"$1\"\n"), 0755))

	stdout := &syncBuffer{}
	sup := NewProcessSupervisor(SupervisorOptions{Stdout: stdout}, &SupervisorMockLogger{})

	handle, err := sup.Spawn(context.Background(), launchdesc.AppSpec{
		Name:             "hello",
		WorkingDirectory: dir,
		Command:          "./bin/hello.sh",
		Args:             []string{"world"},
	})
	require.NoError(t, err)
	waitDone(t, handle)

	assert.Equal(t, "hello world\n", stdout.String())
	assert.Equal(t, 0, handle.ExitCode())
}

func TestResolveCommand(t *testing.T) {
	assert.Equal(t, "/bin/sh", resolveCommand("/bin/sh", "/srv/a"))
	assert.Equal(t, "python3", resolveCommand("python3", "/srv/a"))
	assert.Equal(t, "/srv/a/venv/bin/python3", resolveCommand("./venv/bin/python3", "/srv/a"))
}
