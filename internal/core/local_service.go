package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"hf_downloader/internal/download"
	"hf_downloader/internal/download/types"
	"hf_downloader/internal/events"
	"hf_downloader/internal/state"
	"hf_downloader/internal/utils"
)

// LocalDownloadService runs sessions in this process.
type LocalDownloadService struct {
	controller *download.Controller
	bus        *events.Bus
	grace      time.Duration

	mu     sync.Mutex
	closed bool
}

// NewLocalDownloadService wires a controller to a fresh event bus. A nil
// Recorder defaults to the SQLite history.
func NewLocalDownloadService(opts download.SessionOptions) *LocalDownloadService {
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Recorder == nil {
		opts.Recorder = StateRecorder{}
	}
	return &LocalDownloadService{
		controller: download.NewController(opts),
		bus:        opts.Bus,
		grace:      opts.Config.GetTerminateGrace(),
	}
}

var _ DownloadService = (*LocalDownloadService)(nil)

func (s *LocalDownloadService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *LocalDownloadService) Start(req types.FileSetRequest) (download.Snapshot, error) {
	if s.isClosed() {
		return download.Snapshot{}, ErrServiceClosed
	}
	session, err := s.controller.Start(req)
	if err != nil {
		return download.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

func (s *LocalDownloadService) Pause() (bool, error) {
	return s.controller.Pause(), nil
}

func (s *LocalDownloadService) Resume() (bool, error) {
	return s.controller.Resume(), nil
}

func (s *LocalDownloadService) Stop() (bool, error) {
	return s.controller.Stop(), nil
}

func (s *LocalDownloadService) Status() (download.Snapshot, error) {
	snap, ok := s.controller.Snapshot()
	if !ok {
		return download.Snapshot{}, types.ErrNoSession
	}
	return snap, nil
}

// Wait blocks until the most recent session ends.
func (s *LocalDownloadService) Wait(ctx context.Context) error {
	return s.controller.Wait(ctx)
}

func (s *LocalDownloadService) History(limit int) ([]state.SessionRecord, error) {
	return state.LoadHistory(limit)
}

func (s *LocalDownloadService) StreamEvents(ctx context.Context) (<-chan any, func(), error) {
	return s.bus.Subscribe(ctx)
}

// Shutdown stops any active session, waits for it to wind down and closes
// the event stream. Safe to call more than once.
func (s *LocalDownloadService) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if s.controller.Stop() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*s.grace+time.Second)
		defer cancel()
		if werr := s.controller.Wait(ctx); werr != nil && !errors.Is(werr, types.ErrUserCancelled) {
			err = werr
		}
	}
	utils.Debug("service: shut down")
	s.bus.Close()
	return err
}
