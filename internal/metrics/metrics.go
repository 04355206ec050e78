// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatagramsReceivedTotal counts datagrams read from the command socket
	DatagramsReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledping_datagrams_received_total",
			Help: "Total number of datagrams received on the command socket",
		},
	)

	// DatagramsDroppedTotal counts datagrams abandoned without a reply or action
	DatagramsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledping_datagrams_dropped_total",
			Help: "Total number of datagrams dropped, by reason",
		},
		[]string{"reason"},
	)

	// PingRepliesTotal counts udpPing replies by send result
	PingRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledping_ping_replies_total",
			Help: "Total number of udpPing replies, by result",
		},
		[]string{"result"},
	)

	// ActuatorPulsesTotal counts completed and failed actuator pulses
	ActuatorPulsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledping_actuator_pulses_total",
			Help: "Total number of actuator pulses, by result",
		},
		[]string{"result"},
	)

	// DispatchState tracks what the dispatch loop is doing, as a dispatch.State value
	DispatchState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledping_dispatch_state",
			Help: "Current dispatch loop state (0=listening, 1=replying, 2=pulsing, 3=stopped)",
		},
	)
)

// Drop reasons used as DatagramsDroppedTotal labels
const (
	DropNotJSON    = "not_json"
	DropNoType     = "no_type"
	DropBadReplyTo = "bad_reply_to"
)

// Result labels
const (
	ResultOK    = "ok"
	ResultError = "error"
)
