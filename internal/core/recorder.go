package core

import (
	"time"

	"hf_downloader/internal/download"
	"hf_downloader/internal/download/types"
	"hf_downloader/internal/state"
	"hf_downloader/internal/utils"
)

// StateRecorder writes session history to the SQLite store. Failures are
// logged and never affect the download.
type StateRecorder struct{}

var _ download.Recorder = StateRecorder{}

func (StateRecorder) SessionStarted(info download.SessionInfo) {
	err := state.RecordSessionStart(state.SessionRecord{
		ID:        info.ID,
		RepoID:    info.RepoID,
		DestDir:   info.DestDir,
		Status:    types.StateRunning.String(),
		Total:     info.Total,
		StartedAt: info.StartedAt,
	})
	if err != nil {
		utils.Debug("history: record start %s: %v", utils.ShortID(info.ID), err)
	}
}

func (StateRecorder) FileCompleted(sessionID, file string, kind utils.FileKind) {
	err := state.RecordFileComplete(state.FileRecord{
		SessionID:   sessionID,
		Path:        file,
		Size:        kind.Size,
		MIME:        kind.MIME,
		CompletedAt: time.Now(),
	})
	if err != nil {
		utils.Debug("history: record file %s: %v", file, err)
	}
}

func (StateRecorder) SessionEnded(sessionID string, st types.SessionState, completed int, note string) {
	if err := state.RecordSessionEnd(sessionID, st.String(), completed, note, time.Now()); err != nil {
		utils.Debug("history: record end %s: %v", utils.ShortID(sessionID), err)
	}
}
