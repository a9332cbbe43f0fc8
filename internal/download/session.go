package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"hf_downloader/internal/download/transfer"
	"hf_downloader/internal/download/types"
	"hf_downloader/internal/events"
	"hf_downloader/internal/utils"
)

// Recorder receives session bookkeeping. Calls come from the session
// goroutine, in order.
type Recorder interface {
	SessionStarted(info SessionInfo)
	FileCompleted(sessionID, file string, kind utils.FileKind)
	SessionEnded(sessionID string, state types.SessionState, completed int, note string)
}

// SessionInfo identifies a session to a Recorder.
type SessionInfo struct {
	ID        string
	RepoID    string
	DestDir   string
	Total     int
	StartedAt time.Time
}

// SessionOptions carries the collaborators a session needs.
type SessionOptions struct {
	Invoker  transfer.Invoker
	Bus      *events.Bus
	Fs       afero.Fs
	Config   *types.TransferConfig
	Recorder Recorder
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID          string             `json:"id"`
	RepoID      string             `json:"repo_id"`
	DestDir     string             `json:"dest_dir"`
	State       types.SessionState `json:"state"`
	Completed   int                `json:"completed"`
	Total       int                `json:"total"`
	Percent     float64            `json:"percent"`
	CurrentFile string             `json:"current_file,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	Error       string             `json:"error,omitempty"`
}

// Session downloads one ordered file set, one file at a time. It is
// single-use: once terminal it never runs again.
type Session struct {
	id      string
	repoID  string
	subdir  string
	destDir string
	files   []string
	limit   types.SpeedLimit
	cfg     *types.TransferConfig

	invoker  transfer.Invoker
	bus      *events.Bus
	fs       afero.Fs
	recorder Recorder

	gate          *PauseGate
	stopCtx       context.Context
	stopFn        context.CancelFunc
	stopRequested atomic.Bool

	mu        sync.Mutex
	state     types.SessionState
	queue     []string
	completed int
	current   string
	err       error
	startedAt time.Time

	done chan struct{}
}

// NewSession builds an idle session for req. An empty file list is allowed
// and finishes immediately once started.
func NewSession(req types.FileSetRequest, opts SessionOptions) (*Session, error) {
	if err := req.ValidateTarget(); err != nil {
		return nil, err
	}
	if err := types.ValidateFiles(req.Files); err != nil {
		return nil, err
	}
	if opts.Invoker == nil {
		return nil, errors.New("session requires a transfer invoker")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Config == nil {
		opts.Config = types.DefaultTransferConfig()
	}

	subdir := types.DeriveSubdir(req.RepoID)
	files := append([]string(nil), req.Files...)
	stopCtx, stopFn := context.WithCancel(context.Background())

	return &Session{
		id:       uuid.New().String(),
		repoID:   strings.Trim(strings.TrimSpace(req.RepoID), "/"),
		subdir:   subdir,
		destDir:  filepath.Join(req.DestinationRoot, subdir),
		files:    files,
		limit:    req.SpeedLimit,
		cfg:      opts.Config,
		invoker:  opts.Invoker,
		bus:      opts.Bus,
		fs:       opts.Fs,
		recorder: opts.Recorder,
		gate:     NewPauseGate(),
		stopCtx:  stopCtx,
		stopFn:   stopFn,
		state:    types.StateIdle,
		queue:    append([]string(nil), files...),
		done:     make(chan struct{}),
	}, nil
}

func (s *Session) ID() string      { return s.id }
func (s *Session) RepoID() string  { return s.repoID }
func (s *Session) Subdir() string  { return s.subdir }
func (s *Session) DestDir() string { return s.destDir }
func (s *Session) Total() int      { return len(s.files) }

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err is nil after a finished run, types.ErrUserCancelled after a cancel and
// the failure otherwise. It is nil while the session is still active.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the session is terminal or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:          s.id,
		RepoID:      s.repoID,
		DestDir:     s.destDir,
		State:       s.state,
		Completed:   s.completed,
		Total:       len(s.files),
		Percent:     percent(s.completed, len(s.files)),
		CurrentFile: s.current,
		StartedAt:   s.startedAt,
	}
	if s.err != nil && !errors.Is(s.err, types.ErrUserCancelled) {
		snap.Error = s.err.Error()
	}
	return snap
}

// Start launches the session goroutine. It fails if the session has
// already been started or stopped.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != types.StateIdle {
		return fmt.Errorf("session %s already %s", utils.ShortID(s.id), s.state)
	}
	s.state = types.StateRunning
	s.startedAt = time.Now()
	go s.run()
	return nil
}

// Pause parks the session until Resume. A running transfer keeps going but
// its exit is not acted on while paused. Returns false when there is nothing
// to pause.
func (s *Session) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != types.StateRunning || s.stopRequested.Load() {
		return false
	}
	s.state = types.StatePaused
	s.gate.Disarm()
	s.publish(events.SessionPausedMsg{SessionID: s.id})
	utils.Debug("session %s: paused", utils.ShortID(s.id))
	return true
}

// Resume reopens the gate after a Pause.
func (s *Session) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != types.StatePaused {
		return false
	}
	s.state = types.StateRunning
	s.gate.Arm()
	s.publish(events.SessionResumedMsg{SessionID: s.id})
	utils.Debug("session %s: resumed", utils.ShortID(s.id))
	return true
}

// Stop requests cancellation. The session goroutine terminates the running
// transfer and emits the terminal cancel event. Stop dominates pause.
func (s *Session) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case types.StateIdle:
		s.stopRequested.Store(true)
		s.stopFn()
		s.gate.Release()
		s.state = types.StateCancelled
		s.err = types.ErrUserCancelled
		s.publish(events.SessionCancelledMsg{SessionID: s.id})
		close(s.done)
		return true
	case types.StateRunning, types.StatePaused:
	default:
		return false
	}
	s.state = types.StateCancelling
	s.stopRequested.Store(true)
	s.stopFn()
	s.gate.Release()
	utils.Debug("session %s: stop requested", utils.ShortID(s.id))
	return true
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeCancelled
	outcomeFailed
)

func (s *Session) run() {
	defer close(s.done)
	defer s.stopFn()
	defer func() {
		if r := recover(); r != nil {
			utils.Debug("session %s: panic: %v", utils.ShortID(s.id), r)
			s.fail(fmt.Errorf("internal error: %v", r), "")
		}
	}()

	total := len(s.files)
	utils.Debug("session %s: starting %s (%d files) into %s", utils.ShortID(s.id), s.repoID, total, s.destDir)
	s.publish(events.SessionStartedMsg{
		SessionID: s.id,
		RepoID:    s.repoID,
		Subdir:    s.subdir,
		DestDir:   s.destDir,
		Total:     total,
	})
	if s.recorder != nil {
		s.recorder.SessionStarted(SessionInfo{
			ID:        s.id,
			RepoID:    s.repoID,
			DestDir:   s.destDir,
			Total:     total,
			StartedAt: s.startedAt,
		})
	}

	if total == 0 {
		s.finish()
		return
	}
	if err := s.invoker.Check(); err != nil {
		s.fail(err, "")
		return
	}

	for index := 0; index < total; index++ {
		if s.stopRequested.Load() {
			s.cancel("")
			return
		}
		if err := s.gate.Await(s.stopCtx); err != nil || s.stopRequested.Load() {
			s.cancel("")
			return
		}

		file := s.files[index]
		result, err := s.fetch(index, file)
		switch result {
		case outcomeCancelled:
			note := ""
			if err != nil {
				note = err.Error()
			}
			s.cancel(note)
			return
		case outcomeFailed:
			s.fail(err, file)
			return
		}
		s.complete(file)
	}
	s.finish()
}

// fetch runs one file's transfer to completion.
func (s *Session) fetch(index int, file string) (outcome, error) {
	dest := filepath.Join(s.destDir, filepath.FromSlash(file))
	dir := filepath.Dir(dest)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return outcomeFailed, fmt.Errorf("create %s: %w", dir, err)
	}

	fileURL := s.FileURL(file)
	s.mu.Lock()
	s.current = file
	s.mu.Unlock()
	s.publish(events.FileStartedMsg{
		SessionID: s.id,
		File:      file,
		Index:     index,
		Total:     len(s.files),
		URL:       fileURL,
	})

	spec := transfer.Spec{
		URL:           fileURL,
		Dir:           dir,
		Filename:      filepath.Base(dest),
		Connections:   s.cfg.GetConnections(),
		Segments:      s.cfg.GetSegments(),
		ParallelFiles: s.cfg.GetParallelFiles(),
		SpeedLimit:    s.limit,
	}
	if s.cfg.Token != "" {
		spec.Headers = map[string]string{"Authorization": "Bearer " + s.cfg.Token}
	}

	handle, err := s.invoker.Invoke(s.stopCtx, spec)
	if err != nil {
		if s.stopRequested.Load() {
			return outcomeCancelled, nil
		}
		var missing *types.ToolingMissingError
		if errors.As(err, &missing) {
			return outcomeFailed, err
		}
		return outcomeFailed, &types.TransferFailedError{File: file, ExitCode: -1, Diagnostics: err.Error()}
	}

	stopped := s.supervise(handle)

	code := handle.ExitCode()
	switch {
	case code == 0 && stopped:
		return outcomeCancelled, nil
	case code == 0:
		utils.Debug("session %s: %s done", utils.ShortID(s.id), file)
		return outcomeDone, nil
	case handle.Terminated():
		return outcomeCancelled, nil
	}
	failure := &types.TransferFailedError{File: file, ExitCode: code, Diagnostics: handle.Diagnostics()}
	if s.stopRequested.Load() {
		// The process died on its own while a stop was pending.
		utils.Debug("session %s: %v (during stop)", utils.ShortID(s.id), failure)
		return outcomeCancelled, failure
	}
	return outcomeFailed, failure
}

// supervise waits for handle to exit and reports whether a stop arrived
// before the exit was collected. While paused the process keeps running but
// its exit is held until resume. A stop terminates it.
func (s *Session) supervise(handle transfer.Handle) (stopped bool) {
	ticker := time.NewTicker(s.cfg.GetPollInterval())
	defer ticker.Stop()

	for {
		if s.stopRequested.Load() {
			if err := handle.Terminate(); err != nil {
				utils.Debug("session %s: terminate: %v", utils.ShortID(s.id), err)
			}
			<-handle.Done()
			return true
		}
		if !s.gate.Armed() {
			_ = s.gate.Await(s.stopCtx)
			continue
		}
		select {
		case <-handle.Done():
			if s.gate.Armed() {
				return false
			}
		case <-s.stopCtx.Done():
		case <-ticker.C:
		}
	}
}

func (s *Session) complete(file string) {
	s.mu.Lock()
	s.completed++
	s.queue = s.queue[1:]
	s.current = ""
	msg := events.ProgressMsg{
		SessionID:   s.id,
		Percent:     percent(s.completed, len(s.files)),
		CurrentFile: file,
		Completed:   s.completed,
		Total:       len(s.files),
	}
	s.publish(msg)
	s.mu.Unlock()

	dest := filepath.Join(s.destDir, filepath.FromSlash(file))
	kind, err := utils.SniffFile(s.fs, dest)
	if err != nil {
		utils.Debug("session %s: sniff %s: %v", utils.ShortID(s.id), file, err)
	} else if kind.LooksLikeHTML() && path.Ext(file) != ".html" {
		utils.Debug("session %s: %s looks like an HTML page (%s)", utils.ShortID(s.id), file, kind.MIME)
	}
	if s.recorder != nil {
		s.recorder.FileCompleted(s.id, file, kind)
	}
}

// Terminal transitions set the state under the lock, record the outcome,
// then publish. Nothing else publishes once the state is terminal.

func (s *Session) finish() {
	s.mu.Lock()
	if s.state == types.StateCancelling {
		s.mu.Unlock()
		s.cancel("")
		return
	}
	s.state = types.StateFinished
	completed := s.completed
	s.mu.Unlock()

	utils.Debug("session %s: finished %d files", utils.ShortID(s.id), completed)
	s.record(types.StateFinished, completed, "")
	s.publish(events.SessionFinishedMsg{
		SessionID: s.id,
		Completed: completed,
		Elapsed:   time.Since(s.startedAt),
	})
}

func (s *Session) cancel(note string) {
	s.mu.Lock()
	s.state = types.StateCancelled
	s.err = types.ErrUserCancelled
	s.current = ""
	completed := s.completed
	s.mu.Unlock()

	utils.Debug("session %s: cancelled after %d files", utils.ShortID(s.id), completed)
	s.record(types.StateCancelled, completed, note)
	s.publish(events.SessionCancelledMsg{
		SessionID:     s.id,
		Completed:     completed,
		InterruptedBy: note,
	})
}

func (s *Session) fail(err error, file string) {
	s.mu.Lock()
	if s.state == types.StateCancelling {
		s.mu.Unlock()
		s.cancel(err.Error())
		return
	}
	s.state = types.StateFailed
	s.err = err
	completed := s.completed
	s.mu.Unlock()

	utils.Debug("session %s: failed: %v", utils.ShortID(s.id), err)
	s.record(types.StateFailed, completed, err.Error())
	s.publish(events.SessionErrorMsg{
		SessionID: s.id,
		Message:   err.Error(),
		File:      file,
		Err:       err,
	})
}

func (s *Session) record(st types.SessionState, completed int, note string) {
	if s.recorder != nil {
		s.recorder.SessionEnded(s.id, st, completed, note)
	}
}

func (s *Session) publish(msg any) {
	if s.bus != nil {
		s.bus.Publish(msg)
	}
}

// FileURL is the hub download URL for a path inside the repository.
func (s *Session) FileURL(file string) string {
	segments := strings.Split(file, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/%s/resolve/%s/%s",
		strings.TrimRight(s.cfg.GetEndpoint(), "/"),
		s.repoID,
		url.PathEscape(s.cfg.GetRevision()),
		strings.Join(segments, "/"))
}

func percent(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(completed) * 100 / float64(total)
}
