package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the ledping daemon",
	Long: `Stop the ledping daemon gracefully.

This command sends daemon_shutdown over the control socket. The daemon closes
the command port, leaves the output inactive, removes its PID file and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newControlClient()
		if err != nil {
			return err
		}
		return runStop(cmd.Context(), client, cmd.OutOrStdout())
	},
}

func runStop(ctx context.Context, client ControlClient, out io.Writer) error {
	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	fmt.Fprintln(out, "✓ Daemon is shutting down")
	return nil
}
