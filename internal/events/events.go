// Package events defines the messages a download session emits and the bus
// that carries them to observers.
package events

import "time"

// SessionStartedMsg is sent once the session goroutine begins its run.
type SessionStartedMsg struct {
	SessionID string `json:"session_id"`
	RepoID    string `json:"repo_id"`
	Subdir    string `json:"subdir"`
	DestDir   string `json:"dest_dir"`
	Total     int    `json:"total"`
}

// FileStartedMsg is sent before a file's transfer is launched.
type FileStartedMsg struct {
	SessionID string `json:"session_id"`
	File      string `json:"file"`
	Index     int    `json:"index"`
	Total     int    `json:"total"`
	URL       string `json:"url"`
}

// ProgressMsg is sent after a file completes successfully.
type ProgressMsg struct {
	SessionID   string  `json:"session_id"`
	Percent     float64 `json:"percent"`
	CurrentFile string  `json:"current_file"`
	Completed   int     `json:"completed"`
	Total       int     `json:"total"`
}

// SessionPausedMsg acknowledges a pause request.
type SessionPausedMsg struct {
	SessionID string `json:"session_id"`
}

// SessionResumedMsg acknowledges a resume request.
type SessionResumedMsg struct {
	SessionID string `json:"session_id"`
}

// SessionFinishedMsg is the terminal event of a run that fetched every file.
type SessionFinishedMsg struct {
	SessionID string        `json:"session_id"`
	Completed int           `json:"completed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// SessionCancelledMsg is the terminal event of a run stopped by the user.
// InterruptedBy carries a transfer failure that raced with the stop request;
// it is informational, the outcome is still a cancel.
type SessionCancelledMsg struct {
	SessionID     string `json:"session_id"`
	Completed     int    `json:"completed"`
	InterruptedBy string `json:"interrupted_by,omitempty"`
}

// SessionErrorMsg is the terminal event of a failed run.
type SessionErrorMsg struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Err       error  `json:"-"`
}

// Name maps a message to its wire event name, used by the SSE endpoint and
// the remote client.
func Name(msg any) string {
	switch msg.(type) {
	case SessionStartedMsg:
		return "started"
	case FileStartedMsg:
		return "file"
	case ProgressMsg:
		return "progress"
	case SessionPausedMsg:
		return "paused"
	case SessionResumedMsg:
		return "resumed"
	case SessionFinishedMsg:
		return "finished"
	case SessionCancelledMsg:
		return "cancelled"
	case SessionErrorMsg:
		return "error"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether msg retires a session.
func IsTerminal(msg any) bool {
	switch msg.(type) {
	case SessionFinishedMsg, SessionCancelledMsg, SessionErrorMsg:
		return true
	}
	return false
}

// SessionOf returns the session a message belongs to, or "".
func SessionOf(msg any) string {
	switch m := msg.(type) {
	case SessionStartedMsg:
		return m.SessionID
	case FileStartedMsg:
		return m.SessionID
	case ProgressMsg:
		return m.SessionID
	case SessionPausedMsg:
		return m.SessionID
	case SessionResumedMsg:
		return m.SessionID
	case SessionFinishedMsg:
		return m.SessionID
	case SessionCancelledMsg:
		return m.SessionID
	case SessionErrorMsg:
		return m.SessionID
	}
	return ""
}
