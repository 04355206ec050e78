package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload daemon configuration",
	Long: `Ask the running daemon to re-read its config file.

Only the log level is applied immediately; changes to other sections are
reported in the daemon log and take effect after a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newControlClient()
		if err != nil {
			return err
		}
		return runReload(cmd.Context(), client, cmd.OutOrStdout())
	},
}

func runReload(ctx context.Context, client ControlClient, out io.Writer) error {
	if err := client.ConfigReload(ctx); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	fmt.Fprintln(out, "✓ Configuration reloaded successfully")
	return nil
}
