package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Query the ledping daemon for its overall status.

Shows: version, uptime, station and access point addresses, the bound
command socket and what the dispatch loop is doing right now.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newControlClient()
		if err != nil {
			return err
		}
		return runStatus(cmd.Context(), client, cmd.OutOrStdout())
	},
}

func runStatus(ctx context.Context, client ControlClient, out io.Writer) error {
	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("daemon is not running or socket is inaccessible: %w", err)
	}

	resultJSON, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}

	fmt.Fprintln(out, string(resultJSON))
	return nil
}
