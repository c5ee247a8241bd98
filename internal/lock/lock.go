// Package lock guards a session directory with an advisory flock so
// two daemons never mutate the same chat state concurrently.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// HeldError is returned when another process holds the session lock.
type HeldError struct {
	PID     int
	Session string
	Path    string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("session %q locked by PID %d (%s)", e.Session, e.PID, e.Path)
}

// Guard is an acquired session lock file.
type Guard struct {
	file *os.File
	path string
}

// Acquire takes an exclusive flock on the session directory and stamps
// the lock file with the owning PID. Returns HeldError if another
// process already holds it.
func Acquire(sessionDir, sessionName string) (*Guard, error) {
	lockPath := filepath.Join(sessionDir, "LOCK")

	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		// Surface the current holder for diagnostics.
		data, _ := os.ReadFile(lockPath)
		_ = f.Close()
		return nil, &HeldError{PID: fieldInt(string(data), "pid"), Session: sessionName, Path: lockPath}
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	stamp := fmt.Sprintf("pid=%d\nsession=%s\ntime=%s\n",
		os.Getpid(), sessionName, time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(stamp); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Guard{file: f, path: lockPath}, nil
}

// Release releases the lock. Safe to call on a nil receiver.
func (g *Guard) Release() error {
	if g == nil || g.file == nil {
		return nil
	}
	// Remove the lock file before closing to avoid stale files.
	_ = os.Remove(g.path)
	err := g.file.Close()
	g.file = nil
	return err
}

func fieldInt(content, key string) int {
	for _, line := range strings.Split(content, "\n") {
		if after, ok := strings.CutPrefix(line, key+"="); ok {
			n, _ := strconv.Atoi(after)
			return n
		}
	}
	return 0
}
