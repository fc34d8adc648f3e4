package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const lockFileName = ".lock"

// staleLockAge is how old a lock file must be before a writer may steal
// it. A crashed process leaves its lock behind; a healthy save holds it
// for well under a second.
const staleLockAge = 5 * time.Minute

// dirLock is an exclusive-create lock file serializing writers to one
// cache directory.
type dirLock struct {
	path string
}

// acquireLock takes the per-directory write lock, waiting at most maxWait.
// The wait is bounded: a contended lock times out instead of blocking the
// caller, because a skipped save is never fatal.
func acquireLock(dir string, maxWait time.Duration) (*dirLock, error) {
	path := filepath.Join(dir, lockFileName)
	deadline := time.Now().Add(maxWait)

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return &dirLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			// Holder is long gone; steal the lock.
			os.Remove(path)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("write lock held by another process after %v", maxWait)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (l *dirLock) release() {
	os.Remove(l.path)
}
