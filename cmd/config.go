package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/ledping/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration the daemon would run with: the config file merged
with LEDPING_* environment overrides and built-in defaults. The network
passphrase is masked. Defaults are printed when the config file does not exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigShow(configFile, cmd.OutOrStdout())
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigValidate(configFile, cmd.OutOrStdout())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(path string, out io.Writer) error {
	cfg, err := loadConfigOrDefault(path)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(map[string]config.GlobalConfig{"ledping": cfg.Masked()})
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	_, err = out.Write(data)
	return err
}

func runConfigValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	record := cfg.Record()
	fmt.Fprintf(out, "VALID: ssid %q, port %d, actuator %s\n", record.SSID, record.Port, cfg.Actuator.Driver)
	return nil
}
