package store

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const lockName = "write.lock"

// fileLock is the cross-process half of the write lock: an advisory flock on
// write.lock. The kernel drops it when the owning process exits, so a crash
// never leaves the index locked. The file itself stays in place.
type fileLock struct {
	fl *flock.Flock
}

func acquireFileLock(dir string) (*fileLock, error) {
	path := filepath.Join(dir, lockName)
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, apperrors.IOFailure("locking "+path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s held by another process", apperrors.ErrLockConflict, path)
	}
	return &fileLock{fl: fl}, nil
}

func (l *fileLock) release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("releasing write lock: %w", err)
	}
	return nil
}
