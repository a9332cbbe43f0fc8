package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"hf_downloader/internal/state"
	"hf_downloader/internal/utils"
)

var historyCmd = &cobra.Command{
	Use:          "history [session-id]",
	Short:        "List past download sessions",
	Long:         `List past sessions, newest first. With a session id, list the files it completed.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		initializeGlobalState()
		defer state.CloseDB()

		if len(args) == 1 {
			files, err := state.LoadSessionFiles(args[0])
			if err != nil {
				return err
			}
			printFiles(cmd.OutOrStdout(), files)
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		records, err := state.LoadHistory(limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No downloads yet")
			return nil
		}
		printHistory(cmd.OutOrStdout(), records)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of sessions to list (0 for all)")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func printHistory(w io.Writer, records []state.SessionRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREPO\tSTATUS\tFILES\tSTARTED\tENDED\tNOTE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			utils.ShortID(r.ID), r.RepoID, r.Status, r.Completed, r.Total,
			formatTime(r.StartedAt), formatTime(r.EndedAt), r.Note)
	}
	_ = tw.Flush()
}

func printFiles(w io.Writer, files []state.FileRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tSIZE\tTYPE\tCOMPLETED")
	for _, f := range files {
		mime := f.MIME
		if mime == "" {
			mime = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Path, utils.ConvertBytesToHumanReadable(f.Size), mime, formatTime(f.CompletedAt))
	}
	_ = tw.Flush()
}
