package actuator

import (
	"fmt"

	"go.bug.st/serial"

	"firestige.xyz/ledping/internal/config"
)

// modemLines is the subset of serial.Port used to drive an output.
type modemLines interface {
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	Close() error
}

// SerialLine drives the DTR or RTS modem-control line of a serial port.
type SerialLine struct {
	port      modemLines
	line      string
	activeLow bool
}

// OpenSerial opens the named serial port and returns its output line.
// With activeLow the line is deasserted while active, matching LEDs wired to sink current.
func OpenSerial(cfg config.SerialConfig, activeLow bool) (*SerialLine, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	return newSerialLine(port, cfg.Line, activeLow)
}

func newSerialLine(port modemLines, line string, activeLow bool) (*SerialLine, error) {
	if line != "dtr" && line != "rts" {
		port.Close()
		return nil, fmt.Errorf("unsupported serial line: %s (must be dtr/rts)", line)
	}
	return &SerialLine{port: port, line: line, activeLow: activeLow}, nil
}

// SetLevel asserts or deasserts the configured modem line.
func (s *SerialLine) SetLevel(active bool) error {
	asserted := active != s.activeLow
	if s.line == "rts" {
		return s.port.SetRTS(asserted)
	}
	return s.port.SetDTR(asserted)
}

// Close releases the serial port.
func (s *SerialLine) Close() error {
	return s.port.Close()
}
