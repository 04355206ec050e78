package command

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const (
	// socketMode restricts the control socket to the daemon's user.
	socketMode = 0600

	// maxRequestSize bounds one request line. Control requests carry no payload.
	maxRequestSize = 4096

	// DefaultIdleTimeout closes control connections that stop sending requests.
	DefaultIdleTimeout = 30 * time.Second
)

// UDSServer serves the control plane as newline-delimited JSON-RPC 2.0 over a Unix socket.
type UDSServer struct {
	socketPath  string
	handler     *CommandHandler
	idleTimeout time.Duration
	listener    net.Listener

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
	stopped bool
	done    chan struct{}
}

// NewUDSServer creates a new UDS server.
func NewUDSServer(socketPath string, handler *CommandHandler) *UDSServer {
	return &UDSServer{
		socketPath:  socketPath,
		handler:     handler,
		idleTimeout: DefaultIdleTimeout,
		conns:       make(map[net.Conn]struct{}),
		done:        make(chan struct{}),
	}
}

// SetIdleTimeout changes how long a connection may wait between requests.
func (s *UDSServer) SetIdleTimeout(d time.Duration) {
	if d > 0 {
		s.idleTimeout = d
	}
}

// Listen creates the socket file. Errors are returned before any goroutine starts.
func (s *UDSServer) Listen() error {
	// A previous run may have left its socket behind
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.socketPath, err)
	}

	if err := os.Chmod(s.socketPath, socketMode); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	slog.Info("control socket listening", "socket", s.socketPath)
	return nil
}

// Serve accepts connections until ctx is cancelled or Stop is called.
// It returns once the socket file is gone and every connection has finished.
func (s *UDSServer) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("control socket is not listening")
	}

	stopOnCancel := context.AfterFunc(ctx, func() { s.Stop() })
	defer stopOnCancel()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isStopped() {
				<-s.done
				return nil
			}
			slog.Error("failed to accept control connection", "error", err)
			continue
		}

		if !s.track(conn) {
			conn.Close()
			<-s.done
			return nil
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *UDSServer) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// track registers conn unless the server is stopping.
func (s *UDSServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *UDSServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
	s.wg.Done()
}

// handleConnection answers requests on conn, one line each, until the peer
// closes, goes idle or sends an oversized line.
func (s *UDSServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.untrack(conn)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 512), maxRequestSize)
	encoder := json.NewEncoder(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		if !scanner.Scan() {
			break
		}
		if err := encoder.Encode(s.respond(ctx, scanner.Bytes())); err != nil {
			slog.Warn("failed to send control response", "error", err)
			return
		}
	}

	switch err := scanner.Err(); {
	case errors.Is(err, bufio.ErrTooLong):
		encoder.Encode(rpcError(nil, ErrCodeInvalidRequest,
			fmt.Sprintf("request exceeds %d bytes", maxRequestSize)))
	case errors.Is(err, os.ErrDeadlineExceeded):
		slog.Debug("closing idle control connection")
	case err != nil && !s.isStopped():
		slog.Debug("control connection error", "error", err)
	}
}

// respond turns one request line into its response.
func (s *UDSServer) respond(ctx context.Context, line []byte) JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		slog.Warn("failed to parse control request", "error", err)
		return rpcError(nil, ErrCodeParseError, fmt.Sprintf("parse error: %v", err))
	}
	if req.JSONRPC != "2.0" {
		return rpcError(req.ID, ErrCodeInvalidRequest, fmt.Sprintf("unsupported jsonrpc version %q", req.JSONRPC))
	}

	slog.Debug("control request", "method", req.Method)
	resp := s.handler.Handle(ctx, Command{
		Method: req.Method,
		Params: req.Params,
		ID:     fmt.Sprintf("%v", req.ID),
	})
	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: resp.Result, Error: resp.Error}
}

func rpcError(id interface{}, code int, msg string) JSONRPCResponse {
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &ErrorInfo{Code: code, Message: msg}}
}

// Stop closes the listener and all connections and removes the socket file.
// Only the first call does the work; later calls return immediately.
func (s *UDSServer) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()
	os.RemoveAll(s.socketPath)
	close(s.done)

	slog.Info("control socket stopped", "socket", s.socketPath)
	return nil
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}
