package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"hf_downloader/internal/utils"
)

var addCmd = &cobra.Command{
	Use:          "add [repo]",
	Short:        "Hand a download to the running HFetch instance",
	Long:         `Build a download request here and start it on the instance running 'HFetch download --serve'.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := initializeGlobalState()
		flags := readSelectionFlags(cmd)

		repo, err := resolveRepo(args, flags.clipboard, settings)
		if err != nil {
			return err
		}

		service, err := remoteService()
		if err != nil {
			return err
		}

		req, err := buildRequest(commandContext(cmd), settings, repo, flags)
		if err != nil {
			return err
		}

		follow, _ := cmd.Flags().GetBool("follow")
		var stream <-chan any
		if follow {
			s, cleanup, err := service.StreamEvents(context.Background())
			if err != nil {
				return err
			}
			defer cleanup()
			stream = s
		}

		snap, err := service.Start(req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Started %s (%d files) as session %s\n", snap.RepoID, snap.Total, utils.ShortID(snap.ID))

		if stream == nil {
			return nil
		}
		view := newSessionView(cmd.OutOrStdout(), utils.Console(), snap.ID)
		return outcomeError(view.watch(commandContext(cmd), stream))
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addSelectionFlags(addCmd)
	addCmd.Flags().Bool("follow", false, "Render the session's progress until it ends")
}
