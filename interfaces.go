package main

// The relay provider has four conceptual components.  The following diagram
// illustrates how these components interact.  The resource manager keeps the
// relay connection alive, the relay connection answers the relay's commands
// and reports what it did to the forwarder, and the status server exposes
// the manager's state.
//
// ┏━━━━━━━━━━━━━━━━━━┓    ┏━━━━━━━━━━━━━━━━━━┓    ┏━━━━━━━━━━━┓
// ┃ Resource manager ┃ ━> ┃ Relay connection ┃ ━> ┃ Forwarder ┃
// ┗━━━━━━━━━━━━━━━━━━┛    ┗━━━━━━━━━━━━━━━━━━┛    ┗━━━━━━━━━━━┛
//          ^
//          ┃
// ┏━━━━━━━━━━━━━━━┓
// ┃ Status server ┃
// ┗━━━━━━━━━━━━━━━┛

import (
	"time"
)

type empty struct{}

// config stores the configuration for each component, all in one data
// structure.  Considering that we have few and simple components for now,
// that's acceptable.
type config struct {
	url          string
	configPath   string
	statusAddr   string
	verifyTLS    bool
	debug        bool
	pingInterval time.Duration
	keyExpiry    time.Duration
	anonMethod   int
	fwdInterval  time.Duration
	kafkaConfig  *kafkaConfig
}

type components struct {
	relay *relayResource
	rm    *resourceManager
	s     *statusServer
	f     forwarder
}

// configurer allows for setting the configuration.
type configurer interface {
	setConfig(*config)
}

// startStopper allows for starting and stopping.
type startStopper interface {
	start()
	stop()
}

// forwarder sends events somewhere.  Anywhere, really.
type forwarder interface {
	outbox() chan *event
	startStopper
	configurer
}
