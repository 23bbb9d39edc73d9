// Package lock keeps two updater processes from working in the same directory.
//
// The lock is a marker file holding the owner's PID. A marker whose process is
// gone is considered stale and replaced.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/server-updater/internal/logger"
)

// MarkerFilename marks that the updater is running right now to avoid parallel execution.
const MarkerFilename = ".server-updater.lock"

// markerPermissions is the mode of the marker file.
const markerPermissions = 0o600

// ErrAlreadyRunning is returned when a live process holds the lock.
var ErrAlreadyRunning = errors.New("the updater is already running")

// Lock is a held marker file.
type Lock struct {
	path string
}

// Acquire creates the marker in dir. A stale marker is replaced once.
func Acquire(ctx context.Context, dir string) (*Lock, error) {
	path := filepath.Join(dir, MarkerFilename)

	for attempt := 0; attempt < 2; attempt++ {
		err := create(path)
		if err == nil {
			logger.DebugKV(ctx, "Acquired update marker", "path", path)
			return &Lock{path: path}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create update marker: %w", err)
		}

		pid, running := owner(path)
		if running {
			return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}

		logger.InfoKV(ctx, "The update marker is stale, removing it", "path", path, "pid", pid)

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale update marker: %w", err)
		}
	}

	return nil, ErrAlreadyRunning
}

// Path returns the marker location.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the marker. Releasing a nil lock is a no-op.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove update marker: %w", err)
	}

	return nil
}

func create(path string) error {
	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_EXCL|os.O_WRONLY, markerPermissions)
	if err != nil {
		return err
	}

	_, err = file.WriteString(strconv.Itoa(os.Getpid()))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	return err
}

// owner returns the PID written in the marker and whether that process is alive.
func owner(path string) (int, bool) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	process, err := ps.FindProcess(pid)
	if err != nil || process == nil {
		return pid, false
	}

	return pid, true
}
