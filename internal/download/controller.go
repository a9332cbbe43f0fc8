package download

import (
	"context"
	"sync"

	"hf_downloader/internal/download/types"
	"hf_downloader/internal/utils"
)

// Controller owns at most one active session and routes user commands to
// it. Commands with nothing to act on are no-ops.
type Controller struct {
	opts SessionOptions

	mu      sync.Mutex
	current *Session
}

func NewController(opts SessionOptions) *Controller {
	return &Controller{opts: opts}
}

// Start validates req and launches a new session. It fails with a
// *types.ConfigurationError for bad input and types.ErrSessionActive while
// another session is still running.
func (c *Controller) Start(req types.FileSetRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && !c.current.State().IsTerminal() {
		return nil, types.ErrSessionActive
	}

	s, err := NewSession(req, c.opts)
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	c.current = s
	utils.Debug("controller: started session %s for %s", utils.ShortID(s.ID()), s.RepoID())
	return s, nil
}

func (c *Controller) Pause() bool {
	if s := c.Active(); s != nil {
		return s.Pause()
	}
	return false
}

func (c *Controller) Resume() bool {
	if s := c.Active(); s != nil {
		return s.Resume()
	}
	return false
}

func (c *Controller) Stop() bool {
	if s := c.Active(); s != nil {
		return s.Stop()
	}
	return false
}

// Active returns the running session, or nil once it is terminal.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.State().IsTerminal() {
		return nil
	}
	return c.current
}

// Last returns the most recently started session, terminal or not.
func (c *Controller) Last() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Wait blocks until the most recent session ends and returns its outcome.
func (c *Controller) Wait(ctx context.Context) error {
	s := c.Last()
	if s == nil {
		return types.ErrNoSession
	}
	return s.Wait(ctx)
}

// Snapshot reports the most recent session; ok is false if none was started.
func (c *Controller) Snapshot() (snap Snapshot, ok bool) {
	s := c.Last()
	if s == nil {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}
