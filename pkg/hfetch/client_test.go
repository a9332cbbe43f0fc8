package hfetch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hf_downloader/internal/config"
	"hf_downloader/internal/download/transfer"
)

type doneHandle struct{ done chan struct{} }

func (h doneHandle) Done() <-chan struct{} { return h.done }
func (h doneHandle) ExitCode() int         { return 0 }
func (h doneHandle) Diagnostics() string   { return "" }
func (h doneHandle) Terminated() bool      { return false }
func (h doneHandle) Terminate() error      { return nil }

// writingInvoker "downloads" a file by writing a small body to fs.
type writingInvoker struct {
	fs    afero.Fs
	specs []transfer.Spec
}

func (w *writingInvoker) Check() error { return nil }

func (w *writingInvoker) Invoke(_ context.Context, spec transfer.Spec) (transfer.Handle, error) {
	w.specs = append(w.specs, spec)
	if err := afero.WriteFile(w.fs, filepath.Join(spec.Dir, spec.Filename), []byte("weights"), 0o644); err != nil {
		return nil, err
	}
	h := doneHandle{done: make(chan struct{})}
	close(h.done)
	return h, nil
}

func newTestClient(t *testing.T) (*Client, *writingInvoker, afero.Fs) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_RUNTIME_DIR", "")

	fs := afero.NewMemMapFs()
	inv := &writingInvoker{fs: fs}
	settings := config.DefaultSettings()
	settings.Transfer.PollInterval = 5 * time.Millisecond

	client, err := NewClient(&ClientOptions{
		Settings:  settings,
		StatePath: filepath.Join(dir, "state", "test.db"),
		LogsDir:   filepath.Join(dir, "logs"),
		Invoker:   inv,
		Fs:        fs,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Shutdown() })
	return client, inv, fs
}

func TestClientDownloadsAndRecords(t *testing.T) {
	client, inv, fs := newTestClient(t)

	stream, cleanup, err := client.StreamEvents(context.Background())
	require.NoError(t, err)
	defer cleanup()

	snap, err := client.Start(Request{
		RepoID:          "org/tiny-model",
		DestinationRoot: "/models",
		Files:           []string{"config.json", "weights/model.safetensors"},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Wait(ctx))

	var final any
	for msg := range stream {
		if IsTerminal(msg) {
			final = msg
			break
		}
	}
	finished, ok := final.(SessionFinishedMsg)
	require.True(t, ok, "final event was %T", final)
	assert.Equal(t, 2, finished.Completed)

	require.Len(t, inv.specs, 2)
	assert.Equal(t, "/models/tiny-model/weights", inv.specs[1].Dir)
	exists, err := afero.Exists(fs, "/models/tiny-model/weights/model.safetensors")
	require.NoError(t, err)
	assert.True(t, exists)

	status, err := client.Status()
	require.NoError(t, err)
	assert.Equal(t, StateFinished, status.State)
	assert.Equal(t, 100.0, status.Percent)

	history, err := client.History(0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, snap.ID, history[0].ID)

	files, err := client.SessionFiles(snap.ID)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestClientRejectsInvalidRequest(t *testing.T) {
	client, _, _ := newTestClient(t)

	_, err := client.Start(Request{RepoID: "org/model", DestinationRoot: "/models"})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = client.Start(Request{RepoID: "org/model", DestinationRoot: "/models", Files: []string{"../escape"}})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = client.Status()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestNilClient(t *testing.T) {
	var c *Client
	_, err := c.Start(Request{})
	assert.Error(t, err)
	assert.NoError(t, c.Shutdown())
	assert.Nil(t, c.Service())
}
