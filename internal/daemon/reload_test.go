package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ledping/internal/config"
	logpkg "firestige.xyz/ledping/internal/log"
	"firestige.xyz/ledping/internal/netif"
)

func TestReloadAppliesLogLevel(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yml")
	writeTestConfig(t, configPath, "info")

	d, err := New(configPath, shortSocketPath(t), filepath.Join(tmpDir, "ledping.pid"),
		WithNetworkOptions(netif.WithLister(stationLister)))
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	listen := d.ListenAddr()
	writeTestConfig(t, configPath, "debug")

	require.NoError(t, d.Reload())

	cfg := d.currentConfig()
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, logpkg.Get().Enabled(context.Background(), slog.LevelDebug), "debug records should be enabled after reload")
	assert.Equal(t, listen, d.ListenAddr(), "command socket is not rebound on reload")
}

func TestReloadInvalidConfigKeepsRunning(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yml")
	writeTestConfig(t, configPath, "warn")

	d, err := New(configPath, "", "")
	require.NoError(t, err)

	writeTestConfig(t, configPath, "loud")

	err = d.Reload()
	require.Error(t, err)
	assert.Equal(t, "warn", d.currentConfig().Log.Level)
}

func TestReloadKeepsColdSections(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yml")
	writeTestConfig(t, configPath, "info")

	d, err := New(configPath, "", "")
	require.NoError(t, err)

	updated := `
ledping:
  listen:
    address: 127.0.0.1
    port: 30000
  actuator:
    on_hold: 250ms
`
	require.NoError(t, os.WriteFile(configPath, []byte(updated), 0644))

	require.NoError(t, d.Reload())

	cfg := d.currentConfig()
	assert.Equal(t, 0, cfg.Listen.Port, "listen port requires restart")
	assert.Equal(t, 5*time.Millisecond, cfg.Actuator.OnHold, "actuator holds require restart")
}

func TestRestartRequired(t *testing.T) {
	base := func() *config.GlobalConfig {
		return &config.GlobalConfig{
			Network:  config.NetworkConfig{SSID: "lab", JoinTimeout: time.Second},
			Listen:   config.ListenConfig{Address: "0.0.0.0", Port: 21001},
			Actuator: config.ActuatorConfig{Driver: "none", OnHold: 100 * time.Millisecond},
			Log:      config.LogConfig{Level: "info", Format: "text"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*config.GlobalConfig)
		want   []string
	}{
		{"no changes", func(*config.GlobalConfig) {}, []string{}},
		{"level only", func(c *config.GlobalConfig) { c.Log.Level = "debug" }, []string{}},
		{"port", func(c *config.GlobalConfig) { c.Listen.Port = 21002 }, []string{"listen"}},
		{"ssid", func(c *config.GlobalConfig) { c.Network.SSID = "other" }, []string{"network"}},
		{"serial line", func(c *config.GlobalConfig) { c.Actuator.Serial.Line = "rts" }, []string{"actuator"}},
		{"metrics", func(c *config.GlobalConfig) { c.Metrics.Enabled = true }, []string{"metrics"}},
		{"format", func(c *config.GlobalConfig) { c.Log.Format = "json" }, []string{"log.outputs"}},
		{
			"several",
			func(c *config.GlobalConfig) {
				c.Listen.Address = "127.0.0.1"
				c.Control.Socket = "/tmp/x.sock"
			},
			[]string{"listen", "control"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newCfg := base()
			tt.mutate(newCfg)
			assert.Equal(t, tt.want, restartRequired(base(), newCfg))
		})
	}
}
