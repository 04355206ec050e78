package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"firestige.xyz/ledping/internal/command"
	"firestige.xyz/ledping/internal/config"
)

// ControlClient is the daemon control surface used by status, reload and stop.
// *command.UDSClient implements it.
type ControlClient interface {
	Status(ctx context.Context) (map[string]interface{}, error)
	ConfigReload(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

const controlTimeout = 10 * time.Second

// newControlClient connects to --socket, or to control.socket from the config file.
func newControlClient() (ControlClient, error) {
	path, err := resolveSocketPath()
	if err != nil {
		return nil, err
	}
	return command.NewUDSClient(path, controlTimeout), nil
}

func resolveSocketPath() (string, error) {
	if socketPath != "" {
		return socketPath, nil
	}

	cfg, err := loadConfigOrDefault(configFile)
	if err != nil {
		return "", err
	}
	if cfg.Control.Socket == "" {
		return "", fmt.Errorf("control socket is disabled in %s", configFile)
	}
	return cfg.Control.Socket, nil
}

// loadConfigOrDefault loads path, falling back to built-in defaults when the file does not exist.
func loadConfigOrDefault(path string) (*config.GlobalConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default()
	}
	return config.Load(path)
}
