package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestLoadValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
ledping:
  network:
    ssid: "workshop"
    psk: "hunter2"
    interface: "wlan0"
    join_timeout: 10s
  listen:
    address: "0.0.0.0"
    port: 21002
  actuator:
    driver: serial
    active_low: false
    on_hold: 50ms
    off_hold: 150ms
    serial:
      port: /dev/ttyACM0
      line: rts
  log:
    level: debug
    format: json
  metrics:
    enabled: true
    listen: 127.0.0.1:9100
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	want := GlobalConfig{
		Network: NetworkConfig{
			SSID:        "workshop",
			PSK:         "hunter2",
			Interface:   "wlan0",
			JoinTimeout: 10 * time.Second,
		},
		Listen: ListenConfig{Address: "0.0.0.0", Port: 21002},
		Actuator: ActuatorConfig{
			Driver:  "serial",
			OnHold:  50 * time.Millisecond,
			OffHold: 150 * time.Millisecond,
			Serial:  SerialConfig{Port: "/dev/ttyACM0", Line: "rts"},
		},
		Control: ControlConfig{
			Socket:  "/var/run/ledping.sock",
			PIDFile: "/var/run/ledping.pid",
		},
		Metrics: MetricsConfig{Enabled: true, Listen: "127.0.0.1:9100", Path: "/metrics"},
		Log: LogConfig{
			Level:  "debug",
			Format: "json",
			Outputs: LogOutputsConfig{File: FileOutputConfig{
				Path: "/var/log/ledping/ledping.log",
				Rotation: RotationConfig{
					MaxSizeMB:  10,
					MaxAgeDays: 7,
					MaxBackups: 3,
					Compress:   true,
				},
			}},
		},
	}
	if diff := cmp.Diff(want, *cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDefaults(t *testing.T) {
	configPath := writeConfig(t, "ledping: {}\n")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Listen.Port)
	assert.Equal(t, "0.0.0.0", cfg.Listen.Address)
	assert.Equal(t, "none", cfg.Actuator.Driver)
	assert.True(t, cfg.Actuator.ActiveLow)
	assert.Equal(t, 100*time.Millisecond, cfg.Actuator.OnHold)
	assert.Equal(t, 100*time.Millisecond, cfg.Actuator.OffHold)
	assert.Equal(t, 30*time.Second, cfg.Network.JoinTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadEnvOverride(t *testing.T) {
	configPath := writeConfig(t, `
ledping:
  listen:
    port: 21001
`)

	t.Setenv("LEDPING_LISTEN_PORT", "30000")
	t.Setenv("LEDPING_NETWORK_SSID", "from-env")
	t.Setenv("LEDPING_LOG_LEVEL", "warn")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 30000, cfg.Listen.Port)
	assert.Equal(t, "from-env", cfg.Network.SSID)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "invalid log level",
			content: "ledping:\n  log:\n    level: loud\n",
			wantErr: "invalid log level",
		},
		{
			name:    "invalid log format",
			content: "ledping:\n  log:\n    format: xml\n",
			wantErr: "invalid log format",
		},
		{
			name:    "port out of range",
			content: "ledping:\n  listen:\n    port: 70000\n",
			wantErr: "invalid listen.port",
		},
		{
			name:    "negative port",
			content: "ledping:\n  listen:\n    port: -1\n",
			wantErr: "invalid listen.port",
		},
		{
			name:    "unknown driver",
			content: "ledping:\n  actuator:\n    driver: gpio\n",
			wantErr: "unsupported actuator.driver",
		},
		{
			name:    "serial without port",
			content: "ledping:\n  actuator:\n    driver: serial\n",
			wantErr: "actuator.serial.port is required",
		},
		{
			name:    "serial with unknown line",
			content: "ledping:\n  actuator:\n    driver: serial\n    serial:\n      port: /dev/ttyS0\n      line: cts\n",
			wantErr: "invalid actuator.serial.line",
		},
		{
			name:    "zero hold",
			content: "ledping:\n  actuator:\n    on_hold: 0s\n",
			wantErr: "actuator holds must be positive",
		},
		{
			name:    "zero join timeout",
			content: "ledping:\n  network:\n    join_timeout: 0s\n",
			wantErr: "invalid network.join_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Listen.Port)
}

func TestRecord(t *testing.T) {
	cfg := &GlobalConfig{
		Network: NetworkConfig{SSID: "lab", PSK: "secret"},
		Listen:  ListenConfig{Port: 21001},
	}

	assert.Equal(t, DeviceConfig{SSID: "lab", PSK: "secret", Port: 21001}, cfg.Record())
}

func TestMasked(t *testing.T) {
	cfg := &GlobalConfig{Network: NetworkConfig{SSID: "lab", PSK: "secret"}}

	masked := cfg.Masked()
	assert.Equal(t, "********", masked.Network.PSK)
	assert.Equal(t, "lab", masked.Network.SSID)
	assert.Equal(t, "secret", cfg.Network.PSK, "original must be untouched")

	empty := (&GlobalConfig{}).Masked()
	assert.Empty(t, empty.Network.PSK)
}
