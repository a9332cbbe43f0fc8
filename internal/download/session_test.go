package download

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hf_downloader/internal/download/transfer"
	"hf_downloader/internal/download/types"
	"hf_downloader/internal/events"
	"hf_downloader/internal/utils"
)

type fakeHandle struct {
	done       chan struct{}
	once       sync.Once
	code       atomic.Int64
	diag       string
	terminated atomic.Bool
	// diesFirst models a process that failed on its own just before the
	// terminate signal reached it.
	diesFirst bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{done: make(chan struct{})}
}

func (h *fakeHandle) exit(code int) {
	h.once.Do(func() {
		h.code.Store(int64(code))
		close(h.done)
	})
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) ExitCode() int         { <-h.done; return int(h.code.Load()) }
func (h *fakeHandle) Diagnostics() string   { return h.diag }
func (h *fakeHandle) Terminated() bool      { return h.terminated.Load() }

func (h *fakeHandle) Terminate() error {
	select {
	case <-h.done:
		return nil
	default:
	}
	if h.diesFirst {
		h.exit(1)
		return nil
	}
	h.terminated.Store(true)
	h.exit(143)
	return nil
}

// fakeInvoker writes the requested file into fs and exits 0 unless the
// filename has an exit code in fail, or manual is set, in which case the
// handle is handed to the test through handles.
type fakeInvoker struct {
	fs       afero.Fs
	checkErr error
	fail     map[string]int
	manual   bool
	handles  chan *fakeHandle
	prepare  func(*fakeHandle)

	mu    sync.Mutex
	specs []transfer.Spec
}

func newFakeInvoker(fs afero.Fs) *fakeInvoker {
	return &fakeInvoker{fs: fs, fail: map[string]int{}, handles: make(chan *fakeHandle, 8)}
}

func (f *fakeInvoker) Check() error { return f.checkErr }

func (f *fakeInvoker) Invoke(ctx context.Context, spec transfer.Spec) (transfer.Handle, error) {
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()

	h := newFakeHandle()
	if f.prepare != nil {
		f.prepare(h)
	}
	if f.manual {
		f.handles <- h
		return h, nil
	}
	if code, ok := f.fail[spec.Filename]; ok {
		h.diag = "errorCode=3 resource not found"
		h.exit(code)
		return h, nil
	}
	_ = afero.WriteFile(f.fs, filepath.Join(spec.Dir, spec.Filename), []byte(`{"ok":true}`), 0o644)
	h.exit(0)
	return h, nil
}

func (f *fakeInvoker) invoked() []transfer.Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transfer.Spec(nil), f.specs...)
}

func (f *fakeInvoker) nextHandle(t *testing.T) *fakeHandle {
	t.Helper()
	select {
	case h := <-f.handles:
		return h
	case <-time.After(5 * time.Second):
		t.Fatal("transfer was never invoked")
		return nil
	}
}

type recordedEnd struct {
	state     types.SessionState
	completed int
	note      string
}

type memRecorder struct {
	mu      sync.Mutex
	started []SessionInfo
	files   []string
	kinds   []utils.FileKind
	ends    []recordedEnd
}

func (r *memRecorder) SessionStarted(info SessionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, info)
}

func (r *memRecorder) FileCompleted(_ string, file string, kind utils.FileKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, file)
	r.kinds = append(r.kinds, kind)
}

func (r *memRecorder) SessionEnded(_ string, state types.SessionState, completed int, note string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends = append(r.ends, recordedEnd{state, completed, note})
}

type harness struct {
	fs       afero.Fs
	invoker  *fakeInvoker
	bus      *events.Bus
	recorder *memRecorder
	stream   <-chan any
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	bus := events.NewBus()
	stream, cleanup, err := bus.Subscribe(context.Background())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return &harness{
		fs:       fs,
		invoker:  newFakeInvoker(fs),
		bus:      bus,
		recorder: &memRecorder{},
		stream:   stream,
	}
}

func (h *harness) options() SessionOptions {
	cfg := types.DefaultTransferConfig()
	cfg.PollInterval = 5 * time.Millisecond
	return SessionOptions{
		Invoker:  h.invoker,
		Bus:      h.bus,
		Fs:       h.fs,
		Config:   cfg,
		Recorder: h.recorder,
	}
}

func (h *harness) session(t *testing.T, files ...string) *Session {
	t.Helper()
	s, err := NewSession(types.FileSetRequest{
		RepoID:          "org/model",
		DestinationRoot: "/out",
		Files:           files,
	}, h.options())
	require.NoError(t, err)
	return s
}

// until collects events up to and including the first one for which stop
// returns true.
func (h *harness) until(t *testing.T, stop func(any) bool) []any {
	t.Helper()
	var got []any
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-h.stream:
			require.True(t, ok, "event stream closed early")
			got = append(got, msg)
			if stop(msg) {
				return got
			}
		case <-deadline:
			t.Fatalf("timed out; events so far: %v", got)
		}
	}
}

func (h *harness) untilTerminal(t *testing.T) []any {
	return h.until(t, events.IsTerminal)
}

// quiet fails if any event arrives within d.
func (h *harness) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-h.stream:
		t.Fatalf("unexpected %s event: %#v", events.Name(msg), msg)
	case <-time.After(d):
	}
}

func ofType[T any](msgs []any) []T {
	var out []T
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func waitSession(t *testing.T, s *Session) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Wait(ctx)
}

func TestSessionSingleFileLayoutAndURL(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "config.json")
	require.NoError(t, s.Start())

	msgs := h.untilTerminal(t)
	require.NoError(t, waitSession(t, s))

	specs := h.invoker.invoked()
	require.Len(t, specs, 1)
	assert.Equal(t, "https://huggingface.co/org/model/resolve/main/config.json", specs[0].URL)
	assert.Equal(t, filepath.Join("/out", "model"), specs[0].Dir)
	assert.Equal(t, "config.json", specs[0].Filename)

	progress := ofType[events.ProgressMsg](msgs)
	require.Len(t, progress, 1)
	assert.Equal(t, 100.0, progress[0].Percent)
	assert.Equal(t, "config.json", progress[0].CurrentFile)

	_, ok := msgs[len(msgs)-1].(events.SessionFinishedMsg)
	assert.True(t, ok)
	assert.Equal(t, types.StateFinished, s.State())

	exists, err := afero.Exists(h.fs, filepath.Join("/out", "model", "config.json"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSessionDownloadsInOrderWithIncreasingProgress(t *testing.T) {
	h := newHarness(t)
	files := []string{"config.json", "weights/model.bin", "tokenizer.json"}
	s := h.session(t, files...)
	require.NoError(t, s.Start())

	msgs := h.untilTerminal(t)
	require.NoError(t, waitSession(t, s))

	specs := h.invoker.invoked()
	require.Len(t, specs, 3)
	assert.Equal(t, filepath.Join("/out", "model", "weights"), specs[1].Dir)
	assert.Equal(t, "model.bin", specs[1].Filename)
	assert.Equal(t, "https://huggingface.co/org/model/resolve/main/weights/model.bin", specs[1].URL)

	progress := ofType[events.ProgressMsg](msgs)
	require.Len(t, progress, 3)
	for i, p := range progress {
		assert.Equal(t, files[i], p.CurrentFile)
		assert.Equal(t, i+1, p.Completed)
		if i > 0 {
			assert.Greater(t, p.Percent, progress[i-1].Percent)
		}
	}
	assert.Equal(t, 100.0, progress[2].Percent)

	_, first := msgs[0].(events.SessionStartedMsg)
	assert.True(t, first)
	assert.Len(t, ofType[events.SessionFinishedMsg](msgs), 1)
	assert.Empty(t, ofType[events.SessionErrorMsg](msgs))

	h.recorder.mu.Lock()
	defer h.recorder.mu.Unlock()
	assert.Equal(t, files, h.recorder.files)
	require.Len(t, h.recorder.ends, 1)
	assert.Equal(t, types.StateFinished, h.recorder.ends[0].state)
	assert.Equal(t, 3, h.recorder.ends[0].completed)
}

func TestSessionFailureSkipsRemainingFiles(t *testing.T) {
	h := newHarness(t)
	h.invoker.fail["b.bin"] = 3
	s := h.session(t, "a.json", "b.bin", "c.json")
	require.NoError(t, s.Start())

	msgs := h.untilTerminal(t)
	err := waitSession(t, s)

	var failed *types.TransferFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "b.bin", failed.File)
	assert.Equal(t, 3, failed.ExitCode)
	assert.Contains(t, failed.Diagnostics, "resource not found")

	progress := ofType[events.ProgressMsg](msgs)
	require.Len(t, progress, 1)
	assert.InDelta(t, 100.0/3, progress[0].Percent, 0.001)

	errs := ofType[events.SessionErrorMsg](msgs)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "b.bin")
	assert.Equal(t, "b.bin", errs[0].File)
	assert.Empty(t, ofType[events.SessionFinishedMsg](msgs))

	assert.Len(t, h.invoker.invoked(), 2)
	assert.Equal(t, types.StateFailed, s.State())
	assert.Equal(t, 1, s.Snapshot().Completed)
}

func TestSessionEmptyListFinishesImmediately(t *testing.T) {
	h := newHarness(t)
	h.invoker.checkErr = &types.ToolingMissingError{Binary: "aria2c"}
	s := h.session(t)
	require.NoError(t, s.Start())

	msgs := h.untilTerminal(t)
	require.NoError(t, waitSession(t, s))

	assert.Empty(t, ofType[events.ProgressMsg](msgs))
	assert.Len(t, ofType[events.SessionFinishedMsg](msgs), 1)
	assert.Empty(t, h.invoker.invoked())
}

func TestSessionToolingMissing(t *testing.T) {
	h := newHarness(t)
	h.invoker.checkErr = &types.ToolingMissingError{Binary: "aria2c", Searched: []string{"/opt/bin"}}
	s := h.session(t, "config.json")
	require.NoError(t, s.Start())

	msgs := h.untilTerminal(t)
	err := waitSession(t, s)

	var missing *types.ToolingMissingError
	require.ErrorAs(t, err, &missing)
	errs := ofType[events.SessionErrorMsg](msgs)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "aria2c")
	assert.Empty(t, h.invoker.invoked())
	assert.Equal(t, types.StateFailed, s.State())
}

func TestSessionStopWhileRunning(t *testing.T) {
	h := newHarness(t)
	h.invoker.manual = true
	s := h.session(t, "a.bin", "b.bin")
	require.NoError(t, s.Start())

	handle := h.invoker.nextHandle(t)
	require.True(t, s.Stop())
	assert.Equal(t, types.StateCancelling, s.State())
	assert.False(t, s.Stop())
	assert.False(t, s.Pause())

	msgs := h.untilTerminal(t)
	err := waitSession(t, s)

	assert.ErrorIs(t, err, types.ErrUserCancelled)
	assert.True(t, handle.Terminated())
	cancelled := ofType[events.SessionCancelledMsg](msgs)
	require.Len(t, cancelled, 1)
	assert.Empty(t, cancelled[0].InterruptedBy)
	assert.Empty(t, ofType[events.SessionErrorMsg](msgs))
	assert.Empty(t, ofType[events.ProgressMsg](msgs))
	assert.Len(t, h.invoker.invoked(), 1)
	assert.Equal(t, types.StateCancelled, s.State())
}

func TestSessionStopWhilePaused(t *testing.T) {
	h := newHarness(t)
	h.invoker.manual = true
	s := h.session(t, "a.bin", "b.bin")
	require.NoError(t, s.Start())

	handle := h.invoker.nextHandle(t)
	require.True(t, s.Pause())
	h.until(t, func(m any) bool { _, ok := m.(events.SessionPausedMsg); return ok })
	handle.exit(0)
	h.quiet(t, 50*time.Millisecond)

	require.True(t, s.Stop())
	msgs := h.untilTerminal(t)
	assert.ErrorIs(t, waitSession(t, s), types.ErrUserCancelled)

	assert.Len(t, ofType[events.SessionCancelledMsg](msgs), 1)
	assert.Empty(t, ofType[events.ProgressMsg](msgs))
	assert.Len(t, h.invoker.invoked(), 1)
	assert.Equal(t, 0, s.Snapshot().Completed)
}

func TestSessionPauseHoldsTransferExit(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		terminal string
		state    types.SessionState
	}{
		{name: "success", code: 0, terminal: "finished", state: types.StateFinished},
		{name: "failure", code: 1, terminal: "error", state: types.StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.invoker.manual = true
			s := h.session(t, "a.bin")
			require.NoError(t, s.Start())

			handle := h.invoker.nextHandle(t)
			require.True(t, s.Pause())
			h.until(t, func(m any) bool { _, ok := m.(events.SessionPausedMsg); return ok })

			handle.exit(tt.code)
			h.quiet(t, 100*time.Millisecond)
			assert.Equal(t, types.StatePaused, s.State())
			assert.Equal(t, 0, s.Snapshot().Completed)

			require.True(t, s.Resume())
			msgs := h.untilTerminal(t)
			_ = waitSession(t, s)

			var names []string
			for _, m := range msgs {
				names = append(names, events.Name(m))
			}
			if tt.code == 0 {
				assert.Equal(t, []string{"resumed", "progress", tt.terminal}, names)
			} else {
				assert.Equal(t, []string{"resumed", tt.terminal}, names)
			}
			assert.Equal(t, tt.state, s.State())
		})
	}
}

func TestSessionPauseResumeSequence(t *testing.T) {
	h := newHarness(t)
	h.invoker.manual = true
	s := h.session(t, "a.bin", "b.bin")

	assert.False(t, s.Pause(), "idle session cannot pause")
	require.NoError(t, s.Start())
	handle := h.invoker.nextHandle(t)

	assert.False(t, s.Resume(), "resume while running is a no-op")
	require.True(t, s.Pause())
	assert.False(t, s.Pause())
	require.True(t, s.Resume())
	handle.exit(0)

	second := h.invoker.nextHandle(t)
	second.exit(0)

	msgs := h.untilTerminal(t)
	require.NoError(t, waitSession(t, s))

	var names []string
	for _, m := range msgs {
		names = append(names, events.Name(m))
	}
	assert.Equal(t, []string{"started", "file", "paused", "resumed", "progress", "file", "progress", "finished"}, names)

	assert.False(t, s.Pause())
	assert.False(t, s.Resume())
	assert.False(t, s.Stop())
}

func TestSessionStopRacingFailureIsCancel(t *testing.T) {
	h := newHarness(t)
	h.invoker.manual = true
	h.invoker.prepare = func(fh *fakeHandle) {
		fh.diag = "errorCode=1 network error"
		fh.diesFirst = true
	}
	s := h.session(t, "a.bin", "b.bin")
	require.NoError(t, s.Start())

	handle := h.invoker.nextHandle(t)
	require.True(t, s.Stop())

	msgs := h.untilTerminal(t)
	assert.ErrorIs(t, waitSession(t, s), types.ErrUserCancelled)

	assert.False(t, handle.Terminated())
	cancelled := ofType[events.SessionCancelledMsg](msgs)
	require.Len(t, cancelled, 1)
	assert.Contains(t, cancelled[0].InterruptedBy, "network error")
	assert.Empty(t, ofType[events.SessionErrorMsg](msgs))

	h.recorder.mu.Lock()
	defer h.recorder.mu.Unlock()
	require.Len(t, h.recorder.ends, 1)
	assert.Equal(t, types.StateCancelled, h.recorder.ends[0].state)
	assert.Contains(t, h.recorder.ends[0].note, "network error")
}

func TestSessionStopBeforeStart(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, "a.bin")

	require.True(t, s.Stop())
	assert.ErrorIs(t, waitSession(t, s), types.ErrUserCancelled)
	assert.Error(t, s.Start())
	assert.Empty(t, h.invoker.invoked())
}

func TestSessionForwardsTokenAndLimit(t *testing.T) {
	h := newHarness(t)
	opts := h.options()
	opts.Config.Token = "hf_secret"
	opts.Config.Endpoint = "https://mirror.example/"
	opts.Config.Revision = "v1.0"
	limit, err := types.ParseSpeedLimit("2M")
	require.NoError(t, err)

	s, err := NewSession(types.FileSetRequest{
		RepoID:          "org/model",
		DestinationRoot: "/out",
		Files:           []string{"dir with space/a b.txt"},
		SpeedLimit:      limit,
	}, opts)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	require.NoError(t, waitSession(t, s))

	specs := h.invoker.invoked()
	require.Len(t, specs, 1)
	assert.Equal(t, "https://mirror.example/org/model/resolve/v1.0/dir%20with%20space/a%20b.txt", specs[0].URL)
	assert.Equal(t, "Bearer hf_secret", specs[0].Headers["Authorization"])
	assert.Equal(t, limit, specs[0].SpeedLimit)
}

func TestSessionCopiesRequestFiles(t *testing.T) {
	h := newHarness(t)
	files := []string{"a.json", "b.json"}
	s, err := NewSession(types.FileSetRequest{RepoID: "org/model", DestinationRoot: "/out", Files: files}, h.options())
	require.NoError(t, err)
	files[0] = "mutated.json"

	require.NoError(t, s.Start())
	require.NoError(t, waitSession(t, s))
	assert.Equal(t, "a.json", h.invoker.invoked()[0].Filename)
}

func TestNewSessionRejectsBadPaths(t *testing.T) {
	h := newHarness(t)
	_, err := NewSession(types.FileSetRequest{RepoID: "org/model", DestinationRoot: "/out", Files: []string{"../etc/passwd"}}, h.options())
	assert.True(t, errors.Is(err, types.ErrConfiguration))

	_, err = NewSession(types.FileSetRequest{RepoID: "", DestinationRoot: "/out"}, h.options())
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}
