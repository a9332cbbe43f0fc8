package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"hf_downloader/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the bearer token of the control server",
	Long: `Print the bearer token other tools must send to the control server.
With --rotate a new token is written; a running instance keeps the old one until restarted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		initializeGlobalState()
		if rotate, _ := cmd.Flags().GetBool("rotate"); rotate {
			if err := os.Remove(tokenPath()); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), ensureAuthToken())
		return nil
	},
}

func tokenPath() string {
	return filepath.Join(config.GetStateDir(), "token")
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().Bool("rotate", false, "Generate a new token")
}
