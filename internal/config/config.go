// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultPort is the UDP port the endpoint listens on when none is configured.
const DefaultPort = 21001

// GlobalConfig represents the top-level static configuration.
// Maps to the `ledping:` root key in YAML.
type GlobalConfig struct {
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	Listen   ListenConfig   `mapstructure:"listen" yaml:"listen"`
	Actuator ActuatorConfig `mapstructure:"actuator" yaml:"actuator"`
	Control  ControlConfig  `mapstructure:"control" yaml:"control"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// ─── Network ───

// NetworkConfig holds the credentials and interfaces used by network bring-up.
type NetworkConfig struct {
	SSID        string        `mapstructure:"ssid" yaml:"ssid"`
	PSK         string        `mapstructure:"psk" yaml:"psk"`
	Interface   string        `mapstructure:"interface" yaml:"interface"`       // Empty = auto-detect
	APInterface string        `mapstructure:"ap_interface" yaml:"ap_interface"` // Optional, logging only
	JoinTimeout time.Duration `mapstructure:"join_timeout" yaml:"join_timeout"`
}

// ─── Listener ───

// ListenConfig configures the UDP command socket.
type ListenConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Port    int    `mapstructure:"port" yaml:"port"` // 0 = kernel-assigned
}

// ─── Actuator ───

// ActuatorConfig selects and tunes the output line pulsed by non-ping commands.
type ActuatorConfig struct {
	Driver    string        `mapstructure:"driver" yaml:"driver"` // none | serial
	ActiveLow bool          `mapstructure:"active_low" yaml:"active_low"`
	OnHold    time.Duration `mapstructure:"on_hold" yaml:"on_hold"`
	OffHold   time.Duration `mapstructure:"off_hold" yaml:"off_hold"`
	Serial    SerialConfig  `mapstructure:"serial" yaml:"serial"`
}

// SerialConfig names the serial port and modem-control line used as the output.
type SerialConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
	Line string `mapstructure:"line" yaml:"line"` // dtr | rts
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket" yaml:"socket"`
	PIDFile string `mapstructure:"pid_file" yaml:"pid_file"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// DeviceConfig is the immutable record handed to the endpoint at startup.
type DeviceConfig struct {
	SSID string
	PSK  string
	Port uint16
}

// Record returns the device record derived from a validated configuration.
func (cfg *GlobalConfig) Record() DeviceConfig {
	return DeviceConfig{
		SSID: cfg.Network.SSID,
		PSK:  cfg.Network.PSK,
		Port: uint16(cfg.Listen.Port),
	}
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `ledping: ...`.
type configRoot struct {
	Ledping GlobalConfig `mapstructure:"ledping"`
}

// Load loads configuration from file.
// The YAML file uses `ledping:` as root key; env vars use the LEDPING_ prefix (e.g., LEDPING_LISTEN_PORT).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

// Default returns the configuration used when no file is present.
// Environment overrides still apply.
func Default() (*GlobalConfig, error) {
	return unmarshal(viper.New())
}

func unmarshal(v *viper.Viper) (*GlobalConfig, error) {
	// Key "ledping.listen.port" maps to env "LEDPING_LISTEN_PORT".
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Ledping

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "ledping." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Network defaults
	v.SetDefault("ledping.network.ssid", "")
	v.SetDefault("ledping.network.psk", "")
	v.SetDefault("ledping.network.interface", "")
	v.SetDefault("ledping.network.ap_interface", "")
	v.SetDefault("ledping.network.join_timeout", "30s")

	// Listener defaults
	v.SetDefault("ledping.listen.address", "0.0.0.0")
	v.SetDefault("ledping.listen.port", DefaultPort)

	// Actuator defaults
	v.SetDefault("ledping.actuator.driver", "none")
	v.SetDefault("ledping.actuator.active_low", true)
	v.SetDefault("ledping.actuator.on_hold", "100ms")
	v.SetDefault("ledping.actuator.off_hold", "100ms")
	v.SetDefault("ledping.actuator.serial.port", "")
	v.SetDefault("ledping.actuator.serial.line", "dtr")

	// Control defaults
	v.SetDefault("ledping.control.pid_file", "/var/run/ledping.pid")
	v.SetDefault("ledping.control.socket", "/var/run/ledping.sock")

	// Log defaults
	v.SetDefault("ledping.log.level", "info")
	v.SetDefault("ledping.log.format", "text")
	v.SetDefault("ledping.log.outputs.file.enabled", false)
	v.SetDefault("ledping.log.outputs.file.path", "/var/log/ledping/ledping.log")
	v.SetDefault("ledping.log.outputs.file.rotation.max_size_mb", 10)
	v.SetDefault("ledping.log.outputs.file.rotation.max_age_days", 7)
	v.SetDefault("ledping.log.outputs.file.rotation.max_backups", 3)
	v.SetDefault("ledping.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("ledping.metrics.enabled", false)
	v.SetDefault("ledping.metrics.listen", "127.0.0.1:9091")
	v.SetDefault("ledping.metrics.path", "/metrics")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	// ── Listener ──
	if cfg.Listen.Port < 0 || cfg.Listen.Port > 65535 {
		return fmt.Errorf("invalid listen.port: %d (must be 0-65535)", cfg.Listen.Port)
	}
	if cfg.Listen.Address == "" {
		cfg.Listen.Address = "0.0.0.0"
	}

	// ── Network ──
	if cfg.Network.JoinTimeout <= 0 {
		return fmt.Errorf("invalid network.join_timeout: %s (must be positive)", cfg.Network.JoinTimeout)
	}

	// ── Actuator ──
	switch cfg.Actuator.Driver {
	case "none":
	case "serial":
		if cfg.Actuator.Serial.Port == "" {
			return fmt.Errorf("actuator.serial.port is required when actuator.driver=serial")
		}
		if cfg.Actuator.Serial.Line != "dtr" && cfg.Actuator.Serial.Line != "rts" {
			return fmt.Errorf("invalid actuator.serial.line: %s (must be dtr/rts)", cfg.Actuator.Serial.Line)
		}
	default:
		return fmt.Errorf("unsupported actuator.driver: %s (must be none/serial)", cfg.Actuator.Driver)
	}
	if cfg.Actuator.OnHold <= 0 || cfg.Actuator.OffHold <= 0 {
		return fmt.Errorf("actuator holds must be positive (on_hold=%s, off_hold=%s)",
			cfg.Actuator.OnHold, cfg.Actuator.OffHold)
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
	}

	return nil
}

// Masked returns a copy safe for printing: the passphrase is replaced.
func (cfg *GlobalConfig) Masked() GlobalConfig {
	out := *cfg
	if out.Network.PSK != "" {
		out.Network.PSK = "********"
	}
	return out
}
