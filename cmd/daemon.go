package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/ledping/internal/daemon"
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the ledping endpoint in foreground",
	Long: `Run the ledping endpoint in foreground.

The daemon will:
  1. Load global configuration from config file
  2. Initialize logging, PID file and metrics
  3. Wait for the station interface to get a routable address
  4. Open the actuator with its output inactive
  5. Bind the UDP command port and start the dispatch loop
  6. Start the control socket for status, reload and stop
  7. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)

A receive error on the command socket stops the daemon with a non-zero exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

var pidFile string

func init() {
	daemonCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "",
		"PID file path (default: control.pid_file from config)")
}

func runDaemon() error {
	d, err := daemon.New(configFile, socketPath, pidFile)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Blocks until shutdown
	return d.Run()
}
