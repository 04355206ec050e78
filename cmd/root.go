// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"

	"firestige.xyz/ledping/internal/command"
)

var (
	// Global flags
	configFile string
	socketPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ledping",
	Short: "ledping - UDP latency probe and LED actuator endpoint",
	Long: `ledping runs a small network endpoint that listens for JSON datagrams on a UDP port.

A udpPing message is answered with the endpoint's wall clock in microseconds,
sent to the address named in its replyTo field. Any other typed message pulses
an output line (an LED on a serial modem line, or a recorder when no hardware
is attached).

The same binary probes a running endpoint (ping, send) and controls a local
daemon through its Unix domain socket (status, reload, stop).`,
	Version:       command.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/ledping/config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "",
		"daemon control socket path (default: control.socket from config)")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(configCmd)
}
