package backup

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

var ErrAlreadyRunning = errors.New("another run is active for this backup root")

// RunLock is the advisory lock serializing runs against one backup root.
// Archive and shadow mutation are not transactionally isolated, so two
// concurrent runs would corrupt each other.
type RunLock struct {
	fl *flock.Flock
}

func AcquireLock(backupRoot string) (*RunLock, error) {
	fl := flock.New(filepath.Join(backupRoot, ".linksnap.lock"))

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}

	return &RunLock{fl: fl}, nil
}

func (l *RunLock) Release() {
	_ = l.fl.Unlock()
}
