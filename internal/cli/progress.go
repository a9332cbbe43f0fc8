package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/schollz/progressbar/v3"

	"hf_downloader/internal/events"
	"hf_downloader/internal/utils"
)

// sessionView renders one session's events as a file-count progress bar
// plus console log lines.
type sessionView struct {
	out       io.Writer
	logger    *log.Logger
	sessionID string
	bar       *progressbar.ProgressBar
}

func newSessionView(out io.Writer, logger *log.Logger, sessionID string) *sessionView {
	return &sessionView{out: out, logger: logger, sessionID: sessionID}
}

func (v *sessionView) newBar(total int) {
	v.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(v.out),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("starting"),
	)
}

// breakLine moves past the bar so a log line does not overwrite it.
func (v *sessionView) breakLine() {
	if v.bar != nil {
		fmt.Fprintln(v.out)
	}
}

// handle renders msg and reports whether it ended the session.
func (v *sessionView) handle(msg any) bool {
	if v.sessionID != "" {
		if id := events.SessionOf(msg); id != "" && id != v.sessionID {
			return false
		}
	}

	switch m := msg.(type) {
	case events.SessionStartedMsg:
		v.sessionID = m.SessionID
		v.logger.Info("Downloading", "repo", m.RepoID, "files", m.Total, "into", m.DestDir, "session", utils.ShortID(m.SessionID))
		if m.Total > 0 {
			v.newBar(m.Total)
		}
	case events.FileStartedMsg:
		if v.bar != nil {
			v.bar.Describe(m.File)
		}
		v.logger.Debug("Transfer", "file", m.File, "url", m.URL)
	case events.ProgressMsg:
		if v.bar != nil {
			_ = v.bar.Set(m.Completed)
		}
		v.logger.Debug("Progress", "percent", fmt.Sprintf("%.1f", m.Percent), "file", m.CurrentFile)
	case events.SessionPausedMsg:
		v.breakLine()
		v.logger.Info("Paused; the current file keeps transferring, the next one waits")
	case events.SessionResumedMsg:
		v.breakLine()
		v.logger.Info("Resumed")
	case events.SessionFinishedMsg:
		if v.bar != nil {
			_ = v.bar.Finish()
		}
		v.breakLine()
		v.logger.Info("Finished", "files", m.Completed, "elapsed", m.Elapsed.Round(time.Second))
		return true
	case events.SessionCancelledMsg:
		if v.bar != nil {
			_ = v.bar.Exit()
		}
		v.breakLine()
		v.logger.Warn("Cancelled", "completed", m.Completed)
		if m.InterruptedBy != "" {
			v.logger.Warn("A transfer failed while stopping", "err", m.InterruptedBy)
		}
		return true
	case events.SessionErrorMsg:
		if v.bar != nil {
			_ = v.bar.Exit()
		}
		v.breakLine()
		v.logger.Error("Download failed", "file", m.File, "err", m.Message)
		return true
	}
	return false
}

// watch renders stream until a terminal event and returns it, or nil if the
// stream or ctx ends first.
func (v *sessionView) watch(ctx context.Context, stream <-chan any) any {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-stream:
			if !ok {
				return nil
			}
			if v.handle(msg) {
				return msg
			}
		}
	}
}
