// Package hfetch embeds the HFetch download engine in another program.
package hfetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"hf_downloader/internal/config"
	"hf_downloader/internal/core"
	"hf_downloader/internal/download"
	"hf_downloader/internal/download/transfer"
	"hf_downloader/internal/download/types"
	"hf_downloader/internal/state"
	"hf_downloader/internal/utils"
)

var errNotInitialized = errors.New("client not initialized")

// Client exposes a stable API for embedding HFetch while owning shared
// resources that must be initialized once per process.
type Client struct {
	service *core.LocalDownloadService

	settings  *config.Settings
	statePath string

	closeOnce sync.Once
}

// NewClient initializes the engine and returns a ready-to-use client.
// It wires logging and state storage so callers do not need to manage
// internal singletons directly.
func NewClient(opts *ClientOptions) (*Client, error) {
	if opts == nil {
		opts = &ClientOptions{}
	}
	settings := resolveSettings(opts)

	if err := config.EnsureDirs(); err != nil {
		return nil, err
	}

	logsDir := config.GetLogsDir()
	if opts.LogsDir != "" {
		logsDir = opts.LogsDir
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, err
	}

	// Debug and verbosity are process-wide switches; configure them once here.
	utils.ConfigureDebug(logsDir)
	utils.SetVerbose(opts.Verbose)
	utils.CleanupLogs(settings.General.LogRetentionCount)

	statePath := filepath.Join(config.GetStateDir(), "hfetch.db")
	if opts.StatePath != "" {
		statePath = opts.StatePath
	}
	if err := os.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
		return nil, err
	}
	state.Configure(statePath)

	cfg := types.ConvertTransferSettings(settings)
	invoker := opts.Invoker
	if invoker == nil {
		toolsDir := opts.ToolsDir
		if toolsDir == "" {
			toolsDir = config.GetToolsDir()
		}
		invoker = transfer.NewExecInvoker(cfg, toolsDir)
	}

	service := core.NewLocalDownloadService(download.SessionOptions{
		Invoker: invoker,
		Fs:      opts.Fs,
		Config:  cfg,
	})

	return &Client{
		service:   service,
		settings:  settings,
		statePath: statePath,
	}, nil
}

// resolveSettings keeps the client usable even when settings are missing
// or fail to load from disk.
func resolveSettings(opts *ClientOptions) *config.Settings {
	if opts.Settings != nil {
		return opts.Settings
	}
	settings, err := config.LoadSettings()
	if err != nil {
		return config.DefaultSettings()
	}
	return settings
}

// Settings returns the settings the engine was built from.
func (c *Client) Settings() *Settings { return c.settings }

// StatePath is the SQLite file holding session history.
func (c *Client) StatePath() string { return c.statePath }

// Service exposes the underlying download service.
func (c *Client) Service() core.DownloadService {
	if c == nil {
		return nil
	}
	return c.service
}

// Start begins downloading req. Only one session runs at a time.
func (c *Client) Start(req Request) (Snapshot, error) {
	if c == nil || c.service == nil {
		return Snapshot{}, errNotInitialized
	}
	return c.service.Start(req)
}

// Pause holds the session until Resume. It reports whether the session
// changed state.
func (c *Client) Pause() (bool, error) {
	if c == nil || c.service == nil {
		return false, errNotInitialized
	}
	return c.service.Pause()
}

// Resume releases a paused session.
func (c *Client) Resume() (bool, error) {
	if c == nil || c.service == nil {
		return false, errNotInitialized
	}
	return c.service.Resume()
}

// Stop cancels the session and terminates its transfer.
func (c *Client) Stop() (bool, error) {
	if c == nil || c.service == nil {
		return false, errNotInitialized
	}
	return c.service.Stop()
}

// Status returns the current or most recent session.
func (c *Client) Status() (Snapshot, error) {
	if c == nil || c.service == nil {
		return Snapshot{}, errNotInitialized
	}
	return c.service.Status()
}

// Wait blocks until the session ends and returns its error, if any.
func (c *Client) Wait(ctx context.Context) error {
	if c == nil || c.service == nil {
		return errNotInitialized
	}
	return c.service.Wait(ctx)
}

// History returns past sessions, newest first. limit <= 0 means all.
func (c *Client) History(limit int) ([]SessionRecord, error) {
	if c == nil || c.service == nil {
		return nil, errNotInitialized
	}
	return c.service.History(limit)
}

// SessionFiles returns the files a past session completed.
func (c *Client) SessionFiles(sessionID string) ([]FileRecord, error) {
	if c == nil || c.service == nil {
		return nil, errNotInitialized
	}
	return state.LoadSessionFiles(sessionID)
}

// StreamEvents subscribes to the live event stream.
func (c *Client) StreamEvents(ctx context.Context) (<-chan any, func(), error) {
	if c == nil || c.service == nil {
		return nil, nil, errNotInitialized
	}
	return c.service.StreamEvents(ctx)
}

// Shutdown stops any session and releases resources.
// It is safe to call multiple times from different goroutines.
func (c *Client) Shutdown() error {
	if c == nil {
		return nil
	}
	var err error
	c.closeOnce.Do(func() {
		if c.service != nil {
			err = c.service.Shutdown()
		}
		state.CloseDB()
	})
	return err
}
