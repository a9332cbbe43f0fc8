package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"hf_downloader/internal/config"
	"hf_downloader/internal/core"
	"hf_downloader/internal/state"
	"hf_downloader/internal/utils"
)

// Version information - set via ldflags during build.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Command line flags
var verbose bool

// GlobalService is the engine owned by this process, if any.
var GlobalService core.DownloadService

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "HFetch",
	Short:   "Download model repositories from the Hugging Face hub with aria2c",
	Long:    `HFetch downloads a selection of files from a hub model repository, one file at a time, using aria2c for segmented, resumable transfers.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.SetVersionTemplate("HFetch v{{.Version}}\n")
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute (tests, embedding).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// loadSettings falls back to defaults when the file is unreadable.
func loadSettings() *config.Settings {
	settings, err := config.LoadSettings()
	if err != nil {
		utils.Console().Warn("Using default settings", "err", err)
		return config.DefaultSettings()
	}
	return settings
}

// initializeGlobalState prepares directories, DB, and logging for CLI usage.
func initializeGlobalState() *config.Settings {
	if err := config.EnsureDirs(); err != nil {
		utils.Debug("Failed to create config directories: %v", err)
	}

	// Config engine state
	state.Configure(filepath.Join(config.GetStateDir(), "hfetch.db"))

	// Config logging
	utils.ConfigureDebug(config.GetLogsDir())

	settings := loadSettings()
	utils.CleanupLogs(settings.General.LogRetentionCount)
	return settings
}
