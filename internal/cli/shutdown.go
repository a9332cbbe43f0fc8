package cli

import (
	"errors"
	"fmt"
	"sync"

	"hf_downloader/internal/state"
	"hf_downloader/internal/utils"
)

var (
	globalShutdownOnce sync.Once
	globalShutdownErr  error
	globalShutdownFn   = defaultGlobalShutdown
)

// defaultGlobalShutdown winds the process down in dependency order: the
// session first so its final history rows land, then the store, the lock
// and the log file. Every step runs even if an earlier one failed.
func defaultGlobalShutdown() error {
	var errs []error
	if GlobalService != nil {
		if err := GlobalService.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("service: %w", err))
		}
	}
	state.CloseDB()
	if err := ReleaseLock(); err != nil {
		errs = append(errs, fmt.Errorf("lock: %w", err))
	}
	utils.CloseDebug()
	return errors.Join(errs...)
}

// executeGlobalShutdown runs the shutdown sequence once, whichever of the
// normal exit path or a signal handler gets there first.
func executeGlobalShutdown(reason string) error {
	globalShutdownOnce.Do(func() {
		utils.Debug("shutdown: %s", reason)
		if err := globalShutdownFn(); err != nil {
			globalShutdownErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
	})
	return globalShutdownErr
}

func resetGlobalShutdownCoordinatorForTest(fn func() error) {
	globalShutdownOnce = sync.Once{}
	globalShutdownErr = nil
	if fn != nil {
		globalShutdownFn = fn
		return
	}
	globalShutdownFn = defaultGlobalShutdown
}
