package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/text/encoding/unicode"
)

// KindPing selects the latency-measurement reply.
const KindPing = "udpPing"

// Reasons a datagram is abandoned. None of them reach the sender.
var (
	ErrNotJSON    = errors.New("message is not valid JSON")
	ErrNoType     = errors.New("message has no string type field")
	ErrBadReplyTo = errors.New("replyTo is missing or not an ip:port address")
)

// Message is one decoded command.
type Message struct {
	// Kind is the value of the "type" field.
	Kind string
	// Value is the full decoded JSON object.
	Value map[string]any
}

// pingRequest is the typed view of a udpPing message.
type pingRequest struct {
	ReplyTo string `mapstructure:"replyTo"`
}

// DecodeText converts raw datagram bytes to a string, replacing every
// invalid UTF-8 sequence with U+FFFD. The UTF-8 decoder never fails, so
// its error is ignored.
func DecodeText(b []byte) string {
	out, _ := unicode.UTF8.NewDecoder().Bytes(b)
	return string(out)
}

// ParseMessage parses text as a JSON object and extracts its type.
// Non-object JSON values carry no type and yield ErrNoType.
func ParseMessage(text string) (Message, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return Message{}, ErrNoType
	}
	kind, ok := obj["type"].(string)
	if !ok {
		return Message{}, ErrNoType
	}

	return Message{Kind: kind, Value: obj}, nil
}

// ReplyAddr decodes the replyTo field as a literal ip:port address.
// Host names are not resolved.
func (m Message) ReplyAddr() (netip.AddrPort, error) {
	var req pingRequest
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: &req,
		// Keys match exactly, like "type"; "replyto" is not "replyTo".
		MatchName: func(mapKey, fieldName string) bool { return mapKey == fieldName },
	})
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("failed to build replyTo decoder: %w", err)
	}
	if err := decoder.Decode(m.Value); err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrBadReplyTo, err)
	}
	if req.ReplyTo == "" {
		return netip.AddrPort{}, ErrBadReplyTo
	}

	addr, err := netip.ParseAddrPort(req.ReplyTo)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrBadReplyTo, err)
	}
	// An IPv4 socket cannot send to ::ffff:a.b.c.d.
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port()), nil
}
