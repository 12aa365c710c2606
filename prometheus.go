package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/brave-experiments/nacrelay/mach"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Label keys and values.
	httpCode = "code"
	routine  = "routine"
	relayCmd = "command"
	outcome  = "outcome"
	success  = "success"
	ignored  = "ignored"
	dropped  = "dropped"
	// Commands that we don't know are all counted under this label.
	unknownCmd = "unknown"

	// Our Prometheus namespace.
	ns = "nacrelay"
)

var m metrics

// metrics contains Prometheus metrics for the relay connection, the NAC calls
// that it triggers, the status server, and the Kafka forwarder.
type metrics struct {
	// Set to 1 while we're registered with the relay.
	relayConnected  prometheus.Gauge
	nacCalls        *prometheus.CounterVec
	relayCommands   *prometheus.CounterVec
	statusResponses *prometheus.CounterVec
	numForwarded    *prometheus.CounterVec
}

// failBecause turns the given error into a string that's ready to be used as a
// Prometheus label value, e.g., a broken relay connection is turned into
// "fail (network)".  Error messages carry addresses, ports, and status codes,
// so we only ever use one of a fixed set of reasons.
func failBecause(err error) string {
	return fmt.Sprintf("fail (%s)", failureReason(err))
}

func failureReason(err error) string {
	var (
		code     mach.KernReturn
		netErr   net.Error
		closeErr *websocket.CloseError
		jsonErr  *json.SyntaxError
	)
	for _, known := range []error{
		errBadFrame,
		errBadRegistration,
		errNothingToFwd,
		errKafkaWrite,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	switch {
	case errors.As(err, &code):
		return code.Name()
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &closeErr):
		return "connection closed"
	case errors.As(err, &jsonErr):
		return "malformed json"
	case errors.As(err, &netErr):
		return "network"
	}
	return "other"
}

// init initializes our Prometheus metrics.
func init() {
	m.relayConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "relay_connected",
		Help:      "Whether we're currently registered with the relay",
	})

	m.nacCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "nac_calls",
			Help:      "(Un)successful calls to the attestation daemon",
		},
		[]string{routine, outcome},
	)
	m.relayCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "relay_commands",
			Help:      "Commands that the relay sent us, by outcome",
		},
		[]string{relayCmd, outcome},
	)
	m.statusResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "status_responses",
			Help:      "HTTP responses of the status server",
		},
		[]string{httpCode},
	)
	m.numForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "num_forwarded",
			Help:      "(Un)successfully forwarded events using Kafka",
		},
		[]string{outcome},
	)
}
