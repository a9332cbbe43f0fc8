package cli

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"hf_downloader/internal/config"
)

var instanceLock *flock.Flock

func lockPath() string {
	return filepath.Join(config.GetRuntimeDir(), "hfetch.lock")
}

// AcquireLock takes the single-instance lock. It returns false without error
// when another process holds it.
func AcquireLock() (bool, error) {
	path := lockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil || !ok {
		return false, err
	}
	instanceLock = lock
	return true, nil
}

// ReleaseLock drops the lock taken by AcquireLock.
func ReleaseLock() error {
	if instanceLock == nil {
		return nil
	}
	err := instanceLock.Unlock()
	instanceLock = nil
	return err
}
