package hfetch

import "hf_downloader/internal/events"

// Re-exported event types for consumers.
type SessionStartedMsg = events.SessionStartedMsg
type FileStartedMsg = events.FileStartedMsg
type ProgressMsg = events.ProgressMsg
type SessionPausedMsg = events.SessionPausedMsg
type SessionResumedMsg = events.SessionResumedMsg
type SessionFinishedMsg = events.SessionFinishedMsg
type SessionCancelledMsg = events.SessionCancelledMsg
type SessionErrorMsg = events.SessionErrorMsg

// IsTerminal reports whether msg ends a session.
func IsTerminal(msg any) bool { return events.IsTerminal(msg) }
