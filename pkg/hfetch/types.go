package hfetch

import (
	"hf_downloader/internal/config"
	"hf_downloader/internal/download"
	"hf_downloader/internal/download/types"
	"hf_downloader/internal/state"
)

// Re-exported types for the public API to keep internal packages private
// while maintaining a stable surface for consumers.
type Settings = config.Settings

type Request = types.FileSetRequest
type SpeedLimit = types.SpeedLimit
type SessionState = types.SessionState
type Snapshot = download.Snapshot
type SessionRecord = state.SessionRecord
type FileRecord = state.FileRecord

const (
	StateIdle       = types.StateIdle
	StateRunning    = types.StateRunning
	StatePaused     = types.StatePaused
	StateCancelling = types.StateCancelling
	StateFinished   = types.StateFinished
	StateCancelled  = types.StateCancelled
	StateFailed     = types.StateFailed
)

var (
	ErrSessionActive = types.ErrSessionActive
	ErrNoSession     = types.ErrNoSession
	ErrUserCancelled = types.ErrUserCancelled
	ErrConfiguration = types.ErrConfiguration
)

// ParseSpeedLimit accepts values such as "500K", "2M" or "1G".
func ParseSpeedLimit(s string) (SpeedLimit, error) {
	return types.ParseSpeedLimit(s)
}
