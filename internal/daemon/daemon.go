// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/ledping/internal/actuator"
	"firestige.xyz/ledping/internal/command"
	"firestige.xyz/ledping/internal/config"
	"firestige.xyz/ledping/internal/dispatch"
	logpkg "firestige.xyz/ledping/internal/log"
	"firestige.xyz/ledping/internal/metrics"
	"firestige.xyz/ledping/internal/netif"
)

// Daemon manages the ledping process lifecycle.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	socketPath string
	pidFile    string

	// Core components
	network       *netif.Handle
	actuator      actuator.Actuator
	loop          *dispatch.Loop
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer // nil if control socket disabled
	metricsServer *metrics.Server    // nil if metrics disabled
	netOpts       []netif.Option

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	loopErr      chan error
	serving      bool
	sigChan      chan os.Signal
	stopOnce     sync.Once
	mu           sync.Mutex // guards config
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithNetworkOptions passes options through to network bring-up.
func WithNetworkOptions(opts ...netif.Option) Option {
	return func(d *Daemon) {
		d.netOpts = append(d.netOpts, opts...)
	}
}

// New creates a new Daemon instance. Empty socketPath or pidFile fall back to the control section of the config.
func New(configPath, socketPath, pidFile string, opts ...Option) (*Daemon, error) {
	globalConfig, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if socketPath == "" {
		socketPath = globalConfig.Control.Socket
	}
	if pidFile == "" {
		pidFile = globalConfig.Control.PIDFile
	}

	d := &Daemon{
		config:       globalConfig,
		configPath:   configPath,
		socketPath:   socketPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}, 1),
		loopErr:      make(chan error, 1),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

// Start brings the endpoint up and launches the dispatch loop in the background.
// Any failure before the loop starts is fatal; the caller should Stop and exit.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	cfg := d.currentConfig()
	record := cfg.Record()
	slog.Info("starting ledping daemon",
		"version", command.Version,
		"config", d.configPath,
		"socket", d.socketPath,
		"port", record.Port,
	)

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Join the network; the loop never starts without a station address
	network, err := netif.BringUp(d.ctx, cfg.Network, append([]netif.Option{netif.WithLogger(slog.Default())}, d.netOpts...)...)
	if err != nil {
		return fmt.Errorf("network bring-up failed: %w", err)
	}
	d.network = network

	// 5. Open the actuator with its line inactive
	act, err := actuator.Open(cfg.Actuator, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open actuator: %w", err)
	}
	d.actuator = act

	// 6. Bind the command socket
	conn, err := dispatch.Bind(cfg.Listen.Address, record.Port)
	if err != nil {
		return fmt.Errorf("failed to bind command socket: %w", err)
	}
	d.loop = dispatch.New(conn, act,
		dispatch.WithHolds(cfg.Actuator.OnHold, cfg.Actuator.OffHold),
		dispatch.WithLogger(slog.Default()),
	)

	// 7. Control socket for the CLI
	if err := d.startControl(); err != nil {
		return fmt.Errorf("failed to start control socket: %w", err)
	}

	// 8. Dispatch loop
	d.serving = true
	go func() {
		d.loopErr <- d.loop.Serve()
	}()

	slog.Info("daemon started successfully",
		"sta_ip", network.StationIP(),
		"ap_ip", network.APIP(),
		"listen", d.loop.LocalAddr().String(),
	)
	return nil
}

// Stop performs graceful shutdown of all daemon components. It is safe to call after a failed Start.
func (d *Daemon) Stop() {
	d.stopOnce.Do(d.stop)
}

func (d *Daemon) stop() {
	slog.Info("initiating graceful shutdown")

	// 1. Stop the control socket (no new CLI commands)
	if d.udsServer != nil {
		slog.Info("stopping control socket")
		if err := d.udsServer.Stop(); err != nil {
			slog.Error("error stopping control socket", "error", err)
		}
	}

	// 2. Close the command socket; a pulse in progress finishes first
	if d.loop != nil {
		if err := d.loop.Close(); err != nil {
			slog.Error("error closing command socket", "error", err)
		}
		if d.serving {
			select {
			case <-d.loop.Done():
			case <-time.After(5 * time.Second):
				slog.Warn("dispatch loop did not stop in time")
			}
		}
	}

	// 3. Leave the output inactive
	if d.actuator != nil {
		if err := d.actuator.SetLevel(false); err != nil {
			slog.Error("error deactivating output", "error", err)
		}
		if err := d.actuator.Close(); err != nil {
			slog.Error("error closing actuator", "error", err)
		}
	}

	// 4. Stop metrics server
	if d.metricsServer != nil {
		slog.Info("stopping metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
	}

	// 5. Cancel context to signal all goroutines
	d.cancel()

	// 6. Unregister signal handler to prevent goroutine leak
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 7. Remove PID file
	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}

	slog.Info("daemon stopped gracefully")

	// 8. Flush logs
	logpkg.Flush()
}

// Run blocks until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. daemon_shutdown command via the control socket
//  3. a fatal receive error in the dispatch loop, which Run returns
//
// SIGHUP triggers config reload.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				d.Stop()
				return nil

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				}
			}

		case <-d.shutdownChan:
			slog.Info("shutdown triggered by command")
			d.Stop()
			return nil

		case err := <-d.loopErr:
			if err == nil {
				d.Stop()
				return nil
			}
			slog.Error("dispatch loop failed", "error", err)
			d.Stop()
			return fmt.Errorf("dispatch loop: %w", err)

		case <-d.ctx.Done():
			slog.Info("context cancelled", "error", d.ctx.Err())
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload re-reads the config file.
// Hot-reloadable: log level.
// Cold (requires restart): network, listen, actuator, control, metrics, log format and outputs.
// Implements ConfigReloader interface for CommandHandler.
func (d *Daemon) Reload() error {
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	d.mu.Lock()
	oldConfig := d.config
	d.mu.Unlock()

	hotReloaded := []string{}
	if newConfig.Log.Level != oldConfig.Log.Level {
		if err := logpkg.SetLevel(newConfig.Log.Level); err != nil {
			return fmt.Errorf("failed to apply log level: %w", err)
		}
		hotReloaded = append(hotReloaded, "log.level")
	}

	requiresRestart := restartRequired(oldConfig, newConfig)

	// Keep the running values for everything that was not applied
	applied := *oldConfig
	applied.Log.Level = newConfig.Log.Level
	d.mu.Lock()
	d.config = &applied
	d.mu.Unlock()

	slog.Info("configuration reloaded",
		"hot_reloaded", hotReloaded,
		"requires_restart", requiresRestart,
	)

	return nil
}

// restartRequired lists the changed sections that only take effect on restart.
func restartRequired(oldCfg, newCfg *config.GlobalConfig) []string {
	changed := []string{}
	if oldCfg.Network != newCfg.Network {
		changed = append(changed, "network")
	}
	if oldCfg.Listen != newCfg.Listen {
		changed = append(changed, "listen")
	}
	if oldCfg.Actuator != newCfg.Actuator {
		changed = append(changed, "actuator")
	}
	if oldCfg.Control != newCfg.Control {
		changed = append(changed, "control")
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
	}
	if oldCfg.Log.Format != newCfg.Log.Format || oldCfg.Log.Outputs != newCfg.Log.Outputs {
		changed = append(changed, "log.outputs")
	}
	return changed
}

// Status reports the live endpoint state. Implements StatusProvider for CommandHandler.
func (d *Daemon) Status() command.Status {
	s := command.Status{
		DispatchState: dispatch.StateStopped.String(),
		PID:           os.Getpid(),
	}
	if d.network != nil {
		s.StationIP = d.network.StationIP().String()
		s.APIP = d.network.APIP().String()
	}
	if d.loop != nil {
		s.ListenAddr = d.loop.LocalAddr().String()
		s.DispatchState = d.loop.State().String()
	}
	return s
}

// TriggerShutdown triggers graceful shutdown from external caller (e.g., daemon_shutdown command).
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// ListenAddr returns the bound command socket address, or "" before Start.
func (d *Daemon) ListenAddr() string {
	if d.loop == nil {
		return ""
	}
	return d.loop.LocalAddr().String()
}

func (d *Daemon) currentConfig() *config.GlobalConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// initLogging initializes the logging system from config.
func (d *Daemon) initLogging() error {
	cfg := d.currentConfig()
	if err := logpkg.Init(cfg.Log); err != nil {
		return err
	}

	slog.Debug("logging initialized",
		"level", cfg.Log.Level,
		"format", cfg.Log.Format,
	)

	return nil
}

// startControl opens the control socket if one is configured.
func (d *Daemon) startControl() error {
	d.cmdHandler = command.NewCommandHandler(d, d)
	d.cmdHandler.SetShutdownFunc(func() {
		slog.Info("shutdown triggered via daemon_shutdown command")
		d.TriggerShutdown()
	})

	if d.socketPath == "" {
		slog.Info("control socket disabled")
		return nil
	}

	d.udsServer = command.NewUDSServer(d.socketPath, d.cmdHandler)
	if err := d.udsServer.Listen(); err != nil {
		d.udsServer = nil
		return err
	}
	go func() {
		if err := d.udsServer.Serve(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("control socket failed", "error", err)
		}
	}()

	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	cfg := d.currentConfig().Metrics
	if !cfg.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	server := metrics.NewServer(cfg.Listen, cfg.Path)
	if err := server.Start(d.ctx); err != nil {
		return err
	}
	d.metricsServer = server

	slog.Info("metrics server started",
		"addr", server.Addr(),
		"path", cfg.Path,
	)

	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file written", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file removed", "path", d.pidFile)
	return nil
}
