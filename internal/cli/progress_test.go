package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hf_downloader/internal/events"
	"hf_downloader/internal/utils"
)

func TestSessionViewRendersOneSession(t *testing.T) {
	var out, logs bytes.Buffer
	view := newSessionView(&out, utils.NewConsole(&logs), "s1")

	assert.False(t, view.handle(events.SessionStartedMsg{SessionID: "s1", RepoID: "org/model", Total: 2, DestDir: "/out/model"}))
	assert.False(t, view.handle(events.FileStartedMsg{SessionID: "s1", File: "a.bin", Index: 0, Total: 2}))
	assert.False(t, view.handle(events.ProgressMsg{SessionID: "s1", Percent: 50, CurrentFile: "a.bin", Completed: 1, Total: 2}))
	assert.False(t, view.handle(events.SessionFinishedMsg{SessionID: "other"}), "events of another session are ignored")
	assert.False(t, view.handle(events.SessionPausedMsg{SessionID: "s1"}))
	assert.True(t, view.handle(events.SessionFinishedMsg{SessionID: "s1", Completed: 2, Elapsed: time.Second}))

	assert.Contains(t, logs.String(), "org/model")
	assert.Contains(t, logs.String(), "Paused")
	assert.Contains(t, logs.String(), "Finished")
	assert.NotEmpty(t, out.String())
}

func TestSessionViewWatch(t *testing.T) {
	var out, logs bytes.Buffer
	view := newSessionView(&out, utils.NewConsole(&logs), "")

	stream := make(chan any, 4)
	stream <- events.SessionStartedMsg{SessionID: "s2", Total: 1}
	stream <- events.SessionErrorMsg{SessionID: "s2", Message: "aria2c exited with code 3", File: "a.bin"}
	final := view.watch(context.Background(), stream)

	errMsg, ok := final.(events.SessionErrorMsg)
	assert.True(t, ok)
	assert.Equal(t, "a.bin", errMsg.File)
	assert.Contains(t, logs.String(), "aria2c exited with code 3")

	closed := make(chan any)
	close(closed)
	assert.Nil(t, view.watch(context.Background(), closed))
}

func TestOutcomeError(t *testing.T) {
	assert.NoError(t, outcomeError(events.SessionFinishedMsg{}))
	assert.NoError(t, outcomeError(events.SessionCancelledMsg{InterruptedBy: "exit 1"}))
	assert.EqualError(t, outcomeError(events.SessionErrorMsg{Message: "boom"}), "boom")

	cause := errors.New("cause")
	assert.ErrorIs(t, outcomeError(events.SessionErrorMsg{Message: "x", Err: cause}), cause)
	assert.Error(t, outcomeError(nil))
}
