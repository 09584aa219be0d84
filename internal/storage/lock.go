package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the store lock past the timeout.
var ErrLocked = errors.New("store is locked by another process")

// lockPollInterval is how often a waiting writer retries the lock.
const lockPollInterval = 100 * time.Millisecond

// AcquireLock takes the advisory lock at lockPath, retrying until timeout.
// The returned release function is always non-nil and safe to call.
func AcquireLock(lockPath string, timeout time.Duration) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return func() {}, fmt.Errorf("creating lock directory: %w", err)
	}

	l := flock.New(lockPath)
	deadline := time.Now().Add(timeout)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return func() {}, fmt.Errorf("acquiring store lock: %w", err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return func() {}, fmt.Errorf("%w (lock: %s)", ErrLocked, lockPath)
		}
		time.Sleep(lockPollInterval)
	}
}
