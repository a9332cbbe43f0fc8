// Package core exposes the download engine behind one service interface so
// the CLI, the control server and embedders drive a local engine or a
// running instance the same way.
package core

import (
	"context"
	"errors"

	"hf_downloader/internal/download"
	"hf_downloader/internal/download/types"
	"hf_downloader/internal/state"
)

// ErrServiceClosed is returned once Shutdown has run.
var ErrServiceClosed = errors.New("download service is shut down")

// DownloadService is the engine's public surface. Pause, Resume and Stop
// report whether the command applied; an error means it could not be
// delivered at all.
type DownloadService interface {
	// Start begins a session for req.
	Start(req types.FileSetRequest) (download.Snapshot, error)
	Pause() (bool, error)
	Resume() (bool, error)
	Stop() (bool, error)
	// Status describes the most recent session, or types.ErrNoSession.
	Status() (download.Snapshot, error)
	// History lists past sessions, newest first.
	History(limit int) ([]state.SessionRecord, error)
	// StreamEvents subscribes to session events.
	StreamEvents(ctx context.Context) (<-chan any, func(), error)
	// Shutdown stops the active session and releases resources.
	Shutdown() error
}
