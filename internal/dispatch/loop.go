// Package dispatch implements the endpoint's message-dispatch loop: a single,
// blocking receive/parse/act cycle over one UDP socket.
//
// Each datagram is handled to completion before the next is read. A udpPing
// message is answered with an 8-byte big-endian microsecond timestamp sent to
// the address in its replyTo field. Any other typed message pulses the
// actuator, during which the loop is busy and does not read the socket.
// Malformed datagrams are dropped; only receive errors stop the loop.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"sync/atomic"
	"time"

	"firestige.xyz/ledping/internal/actuator"
	"firestige.xyz/ledping/internal/metrics"
)

// BufferSize is the receive buffer capacity. Longer datagrams are truncated by the transport.
const BufferSize = 2048

// Socket is the subset of *net.UDPConn the loop needs.
type Socket interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
	LocalAddr() net.Addr
	Close() error
}

// State is what the loop is currently doing.
type State int32

const (
	// StateListening is blocked in receive, waiting for the next datagram.
	StateListening State = iota
	// StateReplying is answering a udpPing.
	StateReplying
	// StatePulsing is holding the actuator; datagrams queue in the kernel meanwhile.
	StatePulsing
	// StateStopped means Serve has returned.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateReplying:
		return "replying"
	case StatePulsing:
		return "pulsing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Bind opens the command socket on address:port. It is called exactly once at startup.
func Bind(address string, port uint16) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(address, strconv.Itoa(int(port))))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	return conn, nil
}

// Loop owns the socket, the receive buffer and the actuator for the lifetime of the process.
type Loop struct {
	conn    Socket
	act     actuator.Actuator
	clock   *Clock
	onHold  time.Duration
	offHold time.Duration
	sleep   func(time.Duration)
	logger  *slog.Logger

	buf    [BufferSize]byte
	state  atomic.Int32
	closed atomic.Bool
	done   chan struct{}
}

// Option configures a Loop.
type Option func(*Loop)

// WithHolds sets the active and inactive hold durations of a pulse.
func WithHolds(on, off time.Duration) Option {
	return func(l *Loop) {
		if on > 0 {
			l.onHold = on
		}
		if off > 0 {
			l.offHold = off
		}
	}
}

// WithClock replaces the timestamp source.
func WithClock(c *Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithSleep replaces the blocking delay used during pulses.
func WithSleep(fn func(time.Duration)) Option {
	return func(l *Loop) {
		if fn != nil {
			l.sleep = fn
		}
	}
}

// WithLogger sets the loop logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a loop over an already bound socket.
func New(conn Socket, act actuator.Actuator, opts ...Option) *Loop {
	l := &Loop{
		conn:    conn,
		act:     act,
		clock:   NewClock(nil),
		onHold:  actuator.DefaultOnHold,
		offHold: actuator.DefaultOffHold,
		sleep:   time.Sleep,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LocalAddr returns the bound socket address.
func (l *Loop) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

// State reports what the loop is doing right now.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	metrics.DispatchState.Set(float64(s))
}

// Done is closed when Serve returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Serve runs the loop until the socket fails. It blocks indefinitely while idle.
// A receive error is returned as fatal; after Close it returns nil.
// Serve must be called at most once.
func (l *Loop) Serve() error {
	defer close(l.done)

	l.logger.Info("dispatch loop started", "addr", l.conn.LocalAddr().String(), "buffer", BufferSize)

	for {
		l.setState(StateListening)

		n, from, err := l.conn.ReadFromUDP(l.buf[:])
		if err != nil {
			l.setState(StateStopped)
			if l.closed.Load() {
				l.logger.Info("dispatch loop stopped")
				return nil
			}
			return fmt.Errorf("receive failed: %w", err)
		}

		// Only the n bytes of this datagram are decoded; the rest of buf may hold older data.
		l.handle(l.buf[:n], from)
	}
}

// Close closes the socket, unblocking Serve.
func (l *Loop) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.conn.Close()
}

func (l *Loop) handle(data []byte, from *net.UDPAddr) {
	metrics.DatagramsReceivedTotal.Inc()

	text := DecodeText(data)
	l.logger.Info("received message",
		"from", from.String(),
		"received_at", time.Now().UnixMilli(),
		"message", text,
	)

	msg, err := ParseMessage(text)
	if err != nil {
		l.drop(from, err)
		return
	}

	switch msg.Kind {
	case KindPing:
		l.handlePing(msg, from)
	default:
		l.handleCommand(msg)
	}
}

func (l *Loop) handlePing(msg Message, from *net.UDPAddr) {
	l.setState(StateReplying)

	// Stamp before anything else so parsing cost is not counted as latency.
	us := l.clock.Micros()

	to, err := msg.ReplyAddr()
	if err != nil {
		l.drop(from, err)
		return
	}

	payload := EncodeTimestamp(us)
	if _, err := l.conn.WriteToUDPAddrPort(payload[:], to); err != nil {
		metrics.PingRepliesTotal.WithLabelValues(metrics.ResultError).Inc()
		l.logger.Warn("failed to send ping response", "reply_to", to.String(), "error", err)
		return
	}

	metrics.PingRepliesTotal.WithLabelValues(metrics.ResultOK).Inc()
	l.logger.Info("sent ping response", "reply_to", to.String(), "timestamp_us", us)
}

func (l *Loop) handleCommand(msg Message) {
	l.logger.Info("received command", "type", msg.Kind, "value", msg.Value)

	l.setState(StatePulsing)
	if err := actuator.Pulse(l.act, l.onHold, l.offHold, l.sleep); err != nil {
		metrics.ActuatorPulsesTotal.WithLabelValues(metrics.ResultError).Inc()
		l.logger.Error("actuator pulse failed", "type", msg.Kind, "error", err)
		return
	}

	metrics.ActuatorPulsesTotal.WithLabelValues(metrics.ResultOK).Inc()
	l.logger.Debug("actuator pulse complete", "on_hold", l.onHold, "off_hold", l.offHold)
}

// drop abandons the current datagram. Untyped messages are dropped quietly.
func (l *Loop) drop(from *net.UDPAddr, err error) {
	switch {
	case errors.Is(err, ErrNoType):
		metrics.DatagramsDroppedTotal.WithLabelValues(metrics.DropNoType).Inc()
		l.logger.Debug("dropping untyped message", "from", from.String())
	case errors.Is(err, ErrBadReplyTo):
		metrics.DatagramsDroppedTotal.WithLabelValues(metrics.DropBadReplyTo).Inc()
		l.logger.Warn("dropping ping without usable replyTo", "from", from.String(), "error", err)
	default:
		metrics.DatagramsDroppedTotal.WithLabelValues(metrics.DropNotJSON).Inc()
		l.logger.Warn("dropping unparseable message", "from", from.String(), "error", err)
	}
}
