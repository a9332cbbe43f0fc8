package hfetch

import (
	"github.com/spf13/afero"

	"hf_downloader/internal/config"
	"hf_downloader/internal/download/transfer"
)

// ClientOptions configures the embedded engine.
type ClientOptions struct {
	Verbose   bool
	Settings  *config.Settings
	StatePath string
	LogsDir   string
	// ToolsDir is searched for aria2c before PATH.
	ToolsDir string
	// Invoker replaces the aria2c launcher, mainly for tests.
	Invoker transfer.Invoker
	// Fs is where destination directories are created. Defaults to the OS.
	Fs afero.Fs
}
