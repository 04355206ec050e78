package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/ledping/internal/config"
	"firestige.xyz/ledping/internal/dispatch"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round-trip latency to an endpoint",
	Long: `Send udpPing messages to an endpoint and time its replies.

The reply address is the local address of the probe socket, so the endpoint
answers the same socket. Each reply carries the endpoint clock in
microseconds, which is shown as an offset against the local clock taken at
the middle of the round trip.

Examples:
  ledping ping --target 192.168.4.1
  ledping ping --target 192.168.4.1:21001 --count 10 --interval 200ms`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPing(cmd.Context(), pingOpts, cmd.OutOrStdout())
	},
}

type pingOptions struct {
	target   string
	count    int
	timeout  time.Duration
	interval time.Duration
}

var pingOpts pingOptions

func init() {
	pingCmd.Flags().StringVarP(&pingOpts.target, "target", "t", "",
		"endpoint address host[:port] (required)")
	pingCmd.Flags().IntVarP(&pingOpts.count, "count", "n", 4,
		"number of pings to send")
	pingCmd.Flags().DurationVar(&pingOpts.timeout, "timeout", time.Second,
		"time to wait for each reply")
	pingCmd.Flags().DurationVar(&pingOpts.interval, "interval", time.Second,
		"delay between pings")
	pingCmd.MarkFlagRequired("target")
}

// pingStats accumulates round-trip times.
type pingStats struct {
	sent     int
	received int
	min      time.Duration
	max      time.Duration
	total    time.Duration
}

func (s *pingStats) add(rtt time.Duration) {
	if s.received == 0 || rtt < s.min {
		s.min = rtt
	}
	if rtt > s.max {
		s.max = rtt
	}
	s.received++
	s.total += rtt
}

func (s *pingStats) loss() float64 {
	if s.sent == 0 {
		return 0
	}
	return float64(s.sent-s.received) * 100 / float64(s.sent)
}

func runPing(ctx context.Context, opts pingOptions, out io.Writer) error {
	if opts.count <= 0 {
		return fmt.Errorf("count must be positive, got %d", opts.count)
	}

	target, err := net.ResolveUDPAddr("udp", withDefaultPort(opts.target))
	if err != nil {
		return fmt.Errorf("failed to resolve target: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, target)
	if err != nil {
		return fmt.Errorf("failed to open probe socket: %w", err)
	}
	defer conn.Close()

	local := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	replyTo := netip.AddrPortFrom(local.Addr().Unmap(), local.Port())
	payload, err := json.Marshal(map[string]string{
		"type":    dispatch.KindPing,
		"replyTo": replyTo.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode ping: %w", err)
	}

	fmt.Fprintf(out, "PING %s (reply to %s)\n", target, replyTo)

	stats := &pingStats{}
	buf := make([]byte, dispatch.BufferSize)
	for seq := 1; seq <= opts.count; seq++ {
		if seq > 1 && opts.interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.interval):
			}
		}

		sent := time.Now()
		if _, err := conn.Write(payload); err != nil {
			return fmt.Errorf("failed to send ping: %w", err)
		}
		stats.sent++

		remote, err := readTimestamp(conn, buf, sent.Add(opts.timeout))
		if err != nil {
			if isTimeout(err) {
				fmt.Fprintf(out, "seq=%d timeout after %s\n", seq, opts.timeout)
				continue
			}
			return fmt.Errorf("failed to read reply: %w", err)
		}

		rtt := time.Since(sent)
		stats.add(rtt)
		midpoint := sent.Add(rtt / 2).UnixMicro()
		fmt.Fprintf(out, "seq=%d time=%s remote_us=%d offset=%s\n",
			seq, rtt, remote, time.Duration(int64(remote)-midpoint)*time.Microsecond)
	}

	fmt.Fprintf(out, "--- %s ping statistics ---\n", target)
	fmt.Fprintf(out, "%d sent, %d received, %.1f%% loss\n", stats.sent, stats.received, stats.loss())
	if stats.received == 0 {
		return errors.New("no replies received")
	}
	fmt.Fprintf(out, "rtt min/avg/max = %s/%s/%s\n",
		stats.min, stats.total/time.Duration(stats.received), stats.max)
	return nil
}

// readTimestamp waits for an 8-byte reply, skipping anything else that arrives.
func readTimestamp(conn *net.UDPConn, buf []byte, deadline time.Time) (uint64, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return 0, err
		}
		if us, err := dispatch.DecodeTimestamp(buf[:n]); err == nil {
			return us, nil
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// withDefaultPort appends the default command port when target has none.
func withDefaultPort(target string) string {
	if _, _, err := net.SplitHostPort(target); err == nil {
		return target
	}
	return net.JoinHostPort(target, strconv.Itoa(config.DefaultPort))
}
