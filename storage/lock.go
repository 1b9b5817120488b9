package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ErrLocked is returned when another run holds a fresh lock.
var ErrLocked = errors.New("another run holds the lock")

// Lock is an exclusive lock file. A lock whose modification time is older
// than its TTL is treated as abandoned and taken over.
type Lock struct {
	path string
}

// AcquireLock creates path exclusively, writing the owner's pid and time.
func AcquireLock(path string, ttl time.Duration) (*Lock, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("lock: create dir: %w", err)
		}
	}

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, _ = fmt.Fprintf(f, `{"pid":%d,"time":%d}`+"\n", os.Getpid(), time.Now().Unix())
			_ = f.Close()
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("lock: create %s: %w", path, err)
		}

		fi, err := os.Stat(path)
		if err != nil {
			// released between our create and stat
			continue
		}
		if time.Since(fi.ModTime()) < ttl {
			return nil, fmt.Errorf("lock %s: %w", path, ErrLocked)
		}
		_ = os.Remove(path)
	}
	return nil, fmt.Errorf("lock %s: %w", path, ErrLocked)
}

// Touch refreshes the lock's modification time for long runs.
func (l *Lock) Touch() error {
	now := time.Now()
	return os.Chtimes(l.path, now, now)
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("lock: release %s: %w", l.path, err)
	}
	return nil
}
