package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hf_downloader/greenhttp"
	"hf_downloader/internal/catalog"
	"hf_downloader/internal/clipboard"
	"hf_downloader/internal/config"
	"hf_downloader/internal/core"
	"hf_downloader/internal/download"
	"hf_downloader/internal/download/transfer"
	"hf_downloader/internal/download/types"
	"hf_downloader/internal/events"
	"hf_downloader/internal/state"
	"hf_downloader/internal/utils"
)

var downloadCmd = &cobra.Command{
	Use:     "download [repo]",
	Aliases: []string{"get"},
	Short:   "Download files of a model repository",
	Long: `Download the selected files of a hub model repository into <output>/<model name>/.
Files are fetched one at a time with aria2c. Ctrl+C stops the session; with --serve
other terminals can pause, resume or stop it (see 'HFetch pause').`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	addSelectionFlags(downloadCmd)
	downloadCmd.Flags().Bool("serve", false, "Expose the control server so other terminals can pause/resume/stop")
	downloadCmd.Flags().IntP("port", "p", 0, "Control server port (default: settings or first free from 1700)")
}

// addSelectionFlags registers the flags shared by commands that build a
// download request.
func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "Destination root directory")
	cmd.Flags().StringArrayP("file", "f", nil, "Download only this path (repeatable; skips the catalog listing)")
	cmd.Flags().StringArray("include", nil, "Glob of paths to include (repeatable)")
	cmd.Flags().StringArray("exclude", nil, "Glob of paths to exclude (repeatable)")
	cmd.Flags().StringP("limit", "l", "", "Speed cap such as 500K, 2M or 1G")
	cmd.Flags().Bool("clipboard", false, "Read the repository id or URL from the clipboard")
}

type selectionFlags struct {
	output    string
	files     []string
	include   []string
	exclude   []string
	limit     string
	clipboard bool
}

func readSelectionFlags(cmd *cobra.Command) selectionFlags {
	var f selectionFlags
	f.output, _ = cmd.Flags().GetString("output")
	f.files, _ = cmd.Flags().GetStringArray("file")
	f.include, _ = cmd.Flags().GetStringArray("include")
	f.exclude, _ = cmd.Flags().GetStringArray("exclude")
	f.limit, _ = cmd.Flags().GetString("limit")
	f.clipboard, _ = cmd.Flags().GetBool("clipboard")
	return f
}

func hubHost(settings *config.Settings) string {
	u, err := url.Parse(settings.Hub.Endpoint)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// resolveRepo takes the repository from the argument or the clipboard. Hub
// URLs are accepted and reduced to their repo id.
func resolveRepo(args []string, fromClipboard bool, settings *config.Settings) (string, error) {
	if fromClipboard {
		repo, err := clipboard.ReadRepoID(hubHost(settings))
		if err != nil {
			return "", err
		}
		utils.Console().Info("Repository from clipboard", "repo", repo)
		return repo, nil
	}
	if len(args) == 0 {
		return "", &types.ConfigurationError{Field: "repo_id", Reason: "pass a repository id such as org/model, or --clipboard"}
	}
	repo := clipboard.NewValidator(hubHost(settings)).ExtractRepoID(args[0])
	if repo == "" {
		return "", &types.ConfigurationError{Field: "repo_id", Reason: fmt.Sprintf("%q is not a repository id or hub URL", args[0])}
	}
	return repo, nil
}

// listRepository fetches the catalog of repo with the configured transport.
func listRepository(ctx context.Context, settings *config.Settings, repo string) ([]catalog.Entry, error) {
	httpClient := greenhttp.NewHTTPClient(settings.Hub.Protocol)
	defer httpClient.Close()
	client := catalog.NewClient(types.ConvertTransferSettings(settings), httpClient)
	return client.ListFiles(ctx, repo)
}

// buildRequest turns flags into a validated FileSetRequest, listing the
// repository when no explicit files were given.
func buildRequest(ctx context.Context, settings *config.Settings, repo string, f selectionFlags) (types.FileSetRequest, error) {
	limitText := f.limit
	if limitText == "" {
		limitText = settings.Transfer.SpeedLimit
	}
	limit, err := types.ParseSpeedLimit(limitText)
	if err != nil {
		return types.FileSetRequest{}, err
	}

	output := f.output
	if output == "" {
		output = settings.General.DefaultDownloadDir
	}

	files := f.files
	if len(files) == 0 {
		entries, err := listRepository(ctx, settings, repo)
		if err != nil {
			return types.FileSetRequest{}, err
		}
		entries = catalog.Filter(entries, f.include, f.exclude)
		if len(entries) == 0 {
			return types.FileSetRequest{}, &types.ConfigurationError{Field: "files", Reason: "no files in " + repo + " match the selection"}
		}
		files = catalog.Paths(entries)
		utils.Console().Info("Selected files", "count", len(files), "size", utils.ConvertBytesToHumanReadable(catalog.TotalSize(entries)))
	}

	req := types.FileSetRequest{
		RepoID:          repo,
		DestinationRoot: utils.EnsureAbsPath(output),
		Files:           files,
		SpeedLimit:      limit,
	}
	return req, req.Validate()
}

// newLocalService builds the in-process engine from settings.
func newLocalService(settings *config.Settings) *core.LocalDownloadService {
	cfg := types.ConvertTransferSettings(settings)
	return core.NewLocalDownloadService(download.SessionOptions{
		Invoker: transfer.NewExecInvoker(cfg, config.GetToolsDir()),
		Config:  cfg,
	})
}

func runDownload(cmd *cobra.Command, args []string) error {
	settings := initializeGlobalState()
	logger := utils.Console()
	flags := readSelectionFlags(cmd)

	repo, err := resolveRepo(args, flags.clipboard, settings)
	if err != nil {
		return err
	}

	isMaster, err := AcquireLock()
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !isMaster {
		return fmt.Errorf("another HFetch instance is running; use 'HFetch add %s' to hand it this download", repo)
	}
	defer func() {
		if err := ReleaseLock(); err != nil {
			utils.Debug("Error releasing lock: %v", err)
		}
	}()

	req, err := buildRequest(commandContext(cmd), settings, repo, flags)
	if err != nil {
		return err
	}

	service := newLocalService(settings)
	GlobalService = service
	defer func() { _ = executeGlobalShutdown("download: exit") }()

	if n, err := state.MarkInterrupted(); err == nil && n > 0 {
		utils.Debug("Marked %d stale sessions as interrupted", n)
	}

	if serve, _ := cmd.Flags().GetBool("serve"); serve {
		portFlag, _ := cmd.Flags().GetInt("port")
		if portFlag == 0 {
			portFlag = settings.Server.Port
		}
		port, ln, err := bindServerListener(portFlag)
		if err != nil {
			return err
		}
		server := startHTTPServer(ln, port, service)
		saveActivePort(port)
		defer removeActivePort()
		defer stopHTTPServer(server)
		logger.Info("Control server listening", "addr", fmt.Sprintf("%s:%d", getServerBindHost(), port))
	}

	stream, cleanup, err := service.StreamEvents(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := service.Start(req)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		logger.Warn("Stopping; press Ctrl+C again to force quit", "signal", sig.String())
		_, _ = service.Stop()
		if _, ok := <-sigChan; ok {
			os.Exit(130)
		}
	}()

	view := newSessionView(cmd.OutOrStdout(), logger, snap.ID)
	final := view.watch(commandContext(cmd), stream)
	return outcomeError(final)
}

// outcomeError maps a terminal event to the command result. A user cancel
// is not an error.
func outcomeError(final any) error {
	switch m := final.(type) {
	case events.SessionErrorMsg:
		if m.Err != nil {
			return m.Err
		}
		return errors.New(m.Message)
	case nil:
		return errors.New("event stream ended before the session finished")
	}
	return nil
}
