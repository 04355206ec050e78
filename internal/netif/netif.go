// Package netif implements network bring-up: it waits until the station
// interface holds a routable IPv4 address before the endpoint binds its socket.
package netif

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"firestige.xyz/ledping/internal/config"
)

// ErrJoinTimeout is returned when no routable address appears within the join timeout.
var ErrJoinTimeout = errors.New("network join timed out")

// Interface is a snapshot of one local network interface.
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	IPs      []netip.Addr
}

// InterfaceLister enumerates local interfaces.
type InterfaceLister func() ([]Interface, error)

// Handle is the network identity produced by a successful bring-up.
type Handle struct {
	station      netip.Addr
	stationIface string
	ap           netip.Addr
}

// StationIP returns the routable station address.
func (h *Handle) StationIP() netip.Addr { return h.station }

// StationInterface returns the name of the interface holding StationIP.
func (h *Handle) StationInterface() string { return h.stationIface }

// APIP returns the access-point address, or the unspecified address when none is configured.
func (h *Handle) APIP() netip.Addr { return h.ap }

type options struct {
	lister       InterfaceLister
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option customises BringUp.
type Option func(*options)

// WithLister replaces the system interface enumeration.
func WithLister(l InterfaceLister) Option {
	return func(o *options) {
		if l != nil {
			o.lister = l
		}
	}
}

// WithPollInterval sets how often interfaces are re-checked while waiting.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithLogger sets the logger used for bring-up progress.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// BringUp waits for the station interface to become routable.
// It runs once, synchronously, before the dispatch loop starts.
func BringUp(ctx context.Context, cfg config.NetworkConfig, opts ...Option) (*Handle, error) {
	o := options{
		lister:       SystemInterfaces,
		pollInterval: 500 * time.Millisecond,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	o.logger.Info("bringing up network",
		"ssid", cfg.SSID,
		"psk_set", cfg.PSK != "",
		"interface", cfg.Interface,
		"timeout", cfg.JoinTimeout,
	)

	joinCtx := ctx
	if cfg.JoinTimeout > 0 {
		var cancel context.CancelFunc
		joinCtx, cancel = context.WithTimeout(ctx, cfg.JoinTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		ifaces, err := o.lister()
		if err != nil {
			return nil, fmt.Errorf("failed to list interfaces: %w", err)
		}

		if name, ip, ok := findStation(ifaces, cfg.Interface); ok {
			h := &Handle{station: ip, stationIface: name, ap: netip.IPv4Unspecified()}
			if cfg.APInterface != "" {
				if apIP, ok := firstIPv4(ifaces, cfg.APInterface); ok {
					h.ap = apIP
				} else {
					o.logger.Warn("access point interface has no IPv4 address", "interface", cfg.APInterface)
				}
			}
			o.logger.Info("network up", "sta_ip", h.station, "sta_interface", name, "ap_ip", h.ap)
			return h, nil
		}

		select {
		case <-joinCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if cfg.Interface != "" {
				return nil, fmt.Errorf("%w: interface %s has no routable IPv4 address", ErrJoinTimeout, cfg.Interface)
			}
			return nil, fmt.Errorf("%w: no interface with a routable IPv4 address", ErrJoinTimeout)
		case <-ticker.C:
			o.logger.Debug("waiting for network")
		}
	}
}

// findStation picks the station address. A named interface may be loopback;
// auto-detection skips loopback and down interfaces.
func findStation(ifaces []Interface, name string) (string, netip.Addr, bool) {
	for _, iface := range ifaces {
		if !iface.Up {
			continue
		}
		if name != "" && iface.Name != name {
			continue
		}
		if name == "" && iface.Loopback {
			continue
		}
		for _, ip := range iface.IPs {
			if routable(ip) {
				return iface.Name, ip, true
			}
		}
	}
	return "", netip.Addr{}, false
}

func firstIPv4(ifaces []Interface, name string) (netip.Addr, bool) {
	for _, iface := range ifaces {
		if iface.Name != name {
			continue
		}
		for _, ip := range iface.IPs {
			if ip.Is4() {
				return ip, true
			}
		}
	}
	return netip.Addr{}, false
}

// routable reports whether ip is a usable IPv4 station address.
func routable(ip netip.Addr) bool {
	return ip.Is4() && !ip.IsUnspecified() && !ip.IsLinkLocalUnicast()
}

// SystemInterfaces lists the host's interfaces and their IP addresses.
func SystemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		snap := Interface{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip, ok := netip.AddrFromSlice(ipNet.IP); ok {
				snap.IPs = append(snap.IPs, ip.Unmap())
			}
		}
		out = append(out, snap)
	}
	return out, nil
}
