// Package command implements the local control plane.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Version is reported by daemon_status.
const Version = "0.1.0"

// Status is the daemon state reported by daemon_status.
type Status struct {
	StationIP     string `json:"station_ip"`
	APIP          string `json:"ap_ip"`
	ListenAddr    string `json:"listen_addr"`
	DispatchState string `json:"dispatch_state"`
	PID           int    `json:"pid"`
}

// StatusProvider reports the live daemon state.
type StatusProvider interface {
	Status() Status
}

// ConfigReloader is the interface for reloading global configuration.
type ConfigReloader interface {
	Reload() error
}

// CommandHandler handles control plane commands.
// No command reaches the UDP socket or the actuator; both stay owned by the dispatch loop.
type CommandHandler struct {
	status         StatusProvider
	configReloader ConfigReloader
	shutdownFunc   func() // Called by daemon_shutdown to trigger graceful stop
	startTime      time.Time
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(status StatusProvider, reloader ConfigReloader) *CommandHandler {
	return &CommandHandler{
		status:         status,
		configReloader: reloader,
		startTime:      time.Now(),
	}
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g., "daemon_status"
	Params json.RawMessage `json:"params"`
	ID     string          `json:"id"`
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInternalError  = -32603 // Internal error
)

// Methods
const (
	MethodDaemonStatus   = "daemon_status"
	MethodConfigReload   = "config_reload"
	MethodDaemonShutdown = "daemon_shutdown"
)

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	slog.Debug("handling command", "method", cmd.Method, "id", cmd.ID)

	switch cmd.Method {
	case MethodDaemonStatus:
		return h.handleDaemonStatus(ctx, cmd)
	case MethodConfigReload:
		return h.handleConfigReload(ctx, cmd)
	case MethodDaemonShutdown:
		return h.handleDaemonShutdown(ctx, cmd)
	case "":
		return errorResponse(cmd.ID, ErrCodeInvalidRequest, "missing method")
	default:
		return errorResponse(cmd.ID, ErrCodeMethodNotFound, fmt.Sprintf("method %q not found", cmd.Method))
	}
}

func (h *CommandHandler) handleDaemonStatus(_ context.Context, cmd Command) Response {
	result := map[string]interface{}{
		"version":    Version,
		"uptime_sec": int64(time.Since(h.startTime).Seconds()),
	}
	if h.status != nil {
		s := h.status.Status()
		result["station_ip"] = s.StationIP
		result["ap_ip"] = s.APIP
		result["listen_addr"] = s.ListenAddr
		result["dispatch_state"] = s.DispatchState
		result["pid"] = s.PID
	}

	return Response{ID: cmd.ID, Result: result}
}

func (h *CommandHandler) handleConfigReload(_ context.Context, cmd Command) Response {
	if h.configReloader == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "config reloader not available")
	}

	if err := h.configReloader.Reload(); err != nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, fmt.Sprintf("reload config failed: %v", err))
	}

	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"status": "reloaded"},
	}
}

func (h *CommandHandler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "shutdown handler not registered")
	}

	slog.Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // Non-blocking: let the response be sent first

	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"status": "shutting_down"},
	}
}

func errorResponse(id string, code int, msg string) Response {
	return Response{ID: id, Error: &ErrorInfo{Code: code, Message: msg}}
}
