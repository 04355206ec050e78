package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a typed command message to an endpoint",
	Long: `Send one JSON message to an endpoint without waiting for a reply.

Any type other than udpPing pulses the endpoint output. Extra fields are
given as key=value; a value that parses as JSON is sent as that JSON value,
anything else as a string. --raw sends the text as-is.

Examples:
  ledping send --target 192.168.4.1 --type blink
  ledping send --target 192.168.4.1 --type blink --field color=\"red\" --field times=3
  ledping send --target 192.168.4.1 --raw 'not json'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSend(sendOpts, cmd.OutOrStdout())
	},
}

type sendOptions struct {
	target string
	kind   string
	fields []string
	raw    string
}

var sendOpts sendOptions

func init() {
	sendCmd.Flags().StringVarP(&sendOpts.target, "target", "t", "",
		"endpoint address host[:port] (required)")
	sendCmd.Flags().StringVar(&sendOpts.kind, "type", "",
		"message type")
	sendCmd.Flags().StringArrayVarP(&sendOpts.fields, "field", "f", nil,
		"extra field as key=value (repeatable)")
	sendCmd.Flags().StringVar(&sendOpts.raw, "raw", "",
		"send this text verbatim instead of building a message")
	sendCmd.MarkFlagRequired("target")
	sendCmd.MarkFlagsMutuallyExclusive("type", "raw")
	sendCmd.MarkFlagsMutuallyExclusive("field", "raw")
}

func runSend(opts sendOptions, out io.Writer) error {
	payload, err := buildPayload(opts)
	if err != nil {
		return err
	}

	target, err := net.ResolveUDPAddr("udp", withDefaultPort(opts.target))
	if err != nil {
		return fmt.Errorf("failed to resolve target: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, target)
	if err != nil {
		return fmt.Errorf("failed to open socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	fmt.Fprintf(out, "sent %d bytes to %s: %s\n", len(payload), target, payload)
	return nil
}

func buildPayload(opts sendOptions) ([]byte, error) {
	if opts.raw != "" {
		return []byte(opts.raw), nil
	}
	if opts.kind == "" {
		return nil, fmt.Errorf("either --type or --raw is required")
	}

	msg := map[string]any{"type": opts.kind}
	for _, field := range opts.fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: expected key=value", field)
		}
		if key == "type" {
			return nil, fmt.Errorf("field %q conflicts with --type", key)
		}

		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		msg[key] = v
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return payload, nil
}
