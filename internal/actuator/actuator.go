// Package actuator drives the output line pulsed by non-ping commands.
package actuator

import (
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/ledping/internal/config"
)

// Default hold durations for one pulse.
const (
	DefaultOnHold  = 100 * time.Millisecond
	DefaultOffHold = 100 * time.Millisecond
)

// Actuator is an exclusively owned binary output line.
type Actuator interface {
	// SetLevel drives the line to its active (true) or inactive (false) level.
	SetLevel(active bool) error
	Close() error
}

// Pulse drives a to its active level, holds for on, drives it inactive and holds for off.
// It blocks for on+off. sleep defaults to time.Sleep when nil.
func Pulse(a Actuator, on, off time.Duration, sleep func(time.Duration)) error {
	if sleep == nil {
		sleep = time.Sleep
	}
	if err := a.SetLevel(true); err != nil {
		return fmt.Errorf("failed to activate output: %w", err)
	}
	sleep(on)
	if err := a.SetLevel(false); err != nil {
		return fmt.Errorf("failed to deactivate output: %w", err)
	}
	sleep(off)
	return nil
}

// Open creates the actuator selected by cfg.Driver. The line starts inactive.
func Open(cfg config.ActuatorConfig, logger *slog.Logger) (Actuator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var a Actuator
	switch cfg.Driver {
	case "", "none":
		a = NewRecorder(logger)
	case "serial":
		s, err := OpenSerial(cfg.Serial, cfg.ActiveLow)
		if err != nil {
			return nil, err
		}
		a = s
	default:
		return nil, fmt.Errorf("unsupported actuator driver: %s", cfg.Driver)
	}

	if err := a.SetLevel(false); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialise output level: %w", err)
	}

	logger.Info("actuator ready", "driver", cfg.Driver, "active_low", cfg.ActiveLow)
	return a, nil
}
