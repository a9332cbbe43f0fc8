package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"hf_downloader/internal/catalog"
	"hf_downloader/internal/utils"
)

var filesCmd = &cobra.Command{
	Use:          "files [repo]",
	Aliases:      []string{"ls"},
	Short:        "List the files of a model repository",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := initializeGlobalState()
		fromClipboard, _ := cmd.Flags().GetBool("clipboard")
		include, _ := cmd.Flags().GetStringArray("include")
		exclude, _ := cmd.Flags().GetStringArray("exclude")

		repo, err := resolveRepo(args, fromClipboard, settings)
		if err != nil {
			return err
		}
		entries, err := listRepository(commandContext(cmd), settings, repo)
		if err != nil {
			return err
		}
		printEntries(cmd.OutOrStdout(), catalog.Filter(entries, include, exclude))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(filesCmd)
	filesCmd.Flags().StringArray("include", nil, "Glob of paths to include (repeatable)")
	filesCmd.Flags().StringArray("exclude", nil, "Glob of paths to exclude (repeatable)")
	filesCmd.Flags().Bool("clipboard", false, "Read the repository id or URL from the clipboard")
}

func printEntries(w io.Writer, entries []catalog.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\n", e.Path, utils.ConvertBytesToHumanReadable(e.ByteSize()))
	}
	fmt.Fprintf(tw, "%d files\t%s\n", len(entries), utils.ConvertBytesToHumanReadable(catalog.TotalSize(entries)))
	_ = tw.Flush()
}
