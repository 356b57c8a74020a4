// Package daemon provides lifecycle management for background watch
// processes.
//
// Each watched project gets its own PID file, ready marker and log file
// under the log directory, named after a sanitized form of the project
// name. The PID file contains a single line with the process ID as a
// decimal integer; that format is stable. Writes are serialized through
// a sibling lock file so two starts racing on the same project cannot
// both win.
//
// Start a background watcher:
//
//	pid, exitCh, err := daemon.SpawnBackground(logDir, "myproject", []string{"watch"})
//
// Check and stop:
//
//	pid, err := daemon.GetRunningPID(logDir, "myproject")
//	if pid > 0 {
//	    daemon.StopProcess(pid)
//	}
//
// Platform-specific behavior (process liveness, stop signaling, process
// group detachment) lives in daemon_unix.go and daemon_windows.go.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/yoanbernabeu/codemarks/config"
)

// BackgroundEnv marks a process as a spawned background watcher. The
// watch command uses it to skip re-spawning and TTY output.
const BackgroundEnv = "CODEMARKS_BACKGROUND"

const (
	filePrefix  = "codemarks-watch-"
	pidSuffix   = ".pid"
	logSuffix   = ".log"
	readySuffix = ".ready"
)

// DefaultLogDir returns where PID files and logs live unless
// overridden: the logs directory under the per-user state directory.
// The directory may not exist yet.
func DefaultLogDir() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// sanitizeID makes a project name safe to embed in a file name.
func sanitizeID(project string) string {
	var b strings.Builder
	for _, r := range project {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}

// PIDFilePath returns the PID file location for a project.
func PIDFilePath(logDir, project string) string {
	return filepath.Join(logDir, filePrefix+sanitizeID(project)+pidSuffix)
}

// LogFilePath returns the log file location for a project.
func LogFilePath(logDir, project string) string {
	return filepath.Join(logDir, filePrefix+sanitizeID(project)+logSuffix)
}

// ReadyFilePath returns the ready marker location for a project.
func ReadyFilePath(logDir, project string) string {
	return filepath.Join(logDir, filePrefix+sanitizeID(project)+readySuffix)
}

// WritePIDFile records the current process ID for a project. The write
// goes through a temp file and rename, serialized by a lock file. The
// lock is released once the PID file is in place; the PID file itself
// is the liveness signal.
func WritePIDFile(logDir, project string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	pidPath := PIDFilePath(logDir, project)
	lock := flock.New(pidPath + ".lock")

	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire PID lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another watch process for %s is starting (lock held)", project)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	content := fmt.Sprintf("%d\n", os.Getpid())
	tmpPath := pidPath + ".tmp"

	if err := os.WriteFile(tmpPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	if err := os.Rename(tmpPath, pidPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename PID file: %w", err)
	}

	return nil
}

// ReadPIDFile reads a project's recorded process ID.
//
// Return values:
//   - (0, nil):   no PID file exists (watcher not running)
//   - (pid, nil): PID file exists and holds a valid process ID
//   - (0, error): PID file exists but is corrupt or unreadable
//
// This does not check whether the process is actually alive; use
// GetRunningPID for stale-file detection and cleanup.
func ReadPIDFile(logDir, project string) (int, error) {
	data, err := os.ReadFile(PIDFilePath(logDir, project))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}

	return pid, nil
}

// RemovePIDFile removes a project's PID file and its lock file.
func RemovePIDFile(logDir, project string) error {
	pidPath := PIDFilePath(logDir, project)
	_ = os.Remove(pidPath + ".lock")

	if err := os.Remove(pidPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// GetRunningPID returns the PID of a project's running watcher, or 0.
// Stale PID files left by dead processes are cleaned up on the way.
func GetRunningPID(logDir, project string) (int, error) {
	pid, err := ReadPIDFile(logDir, project)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		return 0, nil
	}

	if !IsProcessRunning(pid) {
		_ = RemovePIDFile(logDir, project)
		return 0, nil
	}

	return pid, nil
}

// WriteReadyFile marks a project's watcher as initialized. Called after
// the initial scan completes and the filesystem watch is established.
func WriteReadyFile(logDir, project string) error {
	content := fmt.Sprintf("ready\n%d\n", os.Getpid())
	if err := os.WriteFile(ReadyFilePath(logDir, project), []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write ready file: %w", err)
	}
	return nil
}

// RemoveReadyFile removes a project's ready marker.
func RemoveReadyFile(logDir, project string) error {
	if err := os.Remove(ReadyFilePath(logDir, project)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove ready file: %w", err)
	}
	return nil
}

// IsReady reports whether a project's ready marker exists.
func IsReady(logDir, project string) bool {
	_, err := os.Stat(ReadyFilePath(logDir, project))
	return err == nil
}

// SpawnBackground re-executes the current binary as a detached
// background process for a project, with stdout/stderr redirected to
// the project's log file and BackgroundEnv set.
//
// Returns the child PID and an exit channel. The channel receives when
// the child terminates, so callers can detect early failures without
// relying on kill(0), which cannot distinguish zombie processes.
func SpawnBackground(logDir, project string, args []string) (int, <-chan struct{}, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return 0, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	executable, err := os.Executable()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	logFile, err := os.OpenFile(LogFilePath(logDir, project), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	liveness, err := newLivenessCheck()
	if err != nil {
		logFile.Close()
		return 0, nil, err
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(), BackgroundEnv+"=1")
	cmd.SysProcAttr = sysProcAttr()
	liveness.configureCmd(cmd)

	if err := cmd.Start(); err != nil {
		logFile.Close()
		liveness.cleanup()
		return 0, nil, fmt.Errorf("failed to start background process: %w", err)
	}

	logFile.Close()
	exitCh := liveness.start(cmd.Process.Pid)

	return cmd.Process.Pid, exitCh, nil
}
