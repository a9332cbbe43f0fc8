package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"hf_downloader/internal/core"
	"hf_downloader/internal/download"
	"hf_downloader/internal/download/types"
	"hf_downloader/internal/utils"
)

// newCommandCmd builds pause/resume/stop, which differ only in the call
// they make on the running instance.
func newCommandCmd(name, short string, call func(core.DownloadService) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:          name,
		Short:        short,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			initializeGlobalState()
			service, err := remoteService()
			if err != nil {
				return err
			}
			applied, err := call(service)
			if err != nil {
				return err
			}
			if applied {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing to do\n", name)
			}
			return nil
		},
	}
}

var statusCmd = &cobra.Command{
	Use:          "status",
	Short:        "Show the running instance's current session",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		initializeGlobalState()
		service, err := remoteService()
		if err != nil {
			return err
		}

		snap, err := service.Status()
		if errors.Is(err, types.ErrNoSession) {
			fmt.Fprintln(cmd.OutOrStdout(), "No session yet")
			return nil
		}
		if err != nil {
			return err
		}
		printSnapshot(cmd.OutOrStdout(), snap)

		follow, _ := cmd.Flags().GetBool("follow")
		if !follow || snap.State.IsTerminal() {
			return nil
		}
		stream, cleanup, err := service.StreamEvents(context.Background())
		if err != nil {
			return err
		}
		defer cleanup()
		view := newSessionView(cmd.OutOrStdout(), utils.Console(), snap.ID)
		return outcomeError(view.watch(commandContext(cmd), stream))
	},
}

func printSnapshot(w io.Writer, snap download.Snapshot) {
	fmt.Fprintf(w, "Session:  %s\n", snap.ID)
	fmt.Fprintf(w, "Repo:     %s\n", snap.RepoID)
	fmt.Fprintf(w, "Into:     %s\n", snap.DestDir)
	fmt.Fprintf(w, "State:    %s\n", snap.State)
	fmt.Fprintf(w, "Progress: %d/%d (%.1f%%)\n", snap.Completed, snap.Total, snap.Percent)
	if snap.CurrentFile != "" {
		fmt.Fprintf(w, "File:     %s\n", snap.CurrentFile)
	}
	if snap.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", snap.Error)
	}
}

func init() {
	rootCmd.AddCommand(
		newCommandCmd("pause", "Pause the running session", core.DownloadService.Pause),
		newCommandCmd("resume", "Resume a paused session", core.DownloadService.Resume),
		newCommandCmd("stop", "Stop the running session", core.DownloadService.Stop),
		statusCmd,
	)
	statusCmd.Flags().BoolP("follow", "f", false, "Keep rendering events until the session ends")
}
