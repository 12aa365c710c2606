package main

// This file implements our connection to the registration relay.  After
// registering, we answer the relay's commands until the connection breaks,
// at which point the resource manager establishes a new connection.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brave-experiments/nacrelay/message"
	"github.com/gorilla/websocket"
	"github.com/paulbellamy/ratecounter"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultRelayURL     = "wss://registration-relay.beeper.com/api/v1/provider"
	defaultPingInterval = time.Minute
	// registerTimeout is how long we wait for the relay to acknowledge our
	// registration.
	registerTimeout = time.Second * 30
	writeTimeout    = time.Second * 10
)

var (
	errBadFrame        = errors.New("received non-text frame")
	errBadRegistration = errors.New("relay sent no usable registration")
)

// validationGenerator is implemented by nac.Generator.
type validationGenerator interface {
	Generate(ctx context.Context) ([]byte, error)
}

// relayResource implements the resource interface.  It registers with the
// relay and then answers commands.
type relayResource struct {
	sync.Mutex
	url          string
	state        *message.Registration
	dialer       *websocket.Dialer
	pingInterval time.Duration
	debug        bool
	gen          validationGenerator
	versions     func() (*message.Versions, error)
	events       chan *event
	counter      *ratecounter.RateCounter
}

func newRelayResource(
	url string,
	state *message.Registration,
	gen validationGenerator,
	versions func() (*message.Versions, error),
	events chan *event,
) *relayResource {
	return &relayResource{
		url:          url,
		state:        state,
		dialer:       websocket.DefaultDialer,
		pingInterval: defaultPingInterval,
		gen:          gen,
		versions:     versions,
		events:       events,
		counter:      ratecounter.NewRateCounter(time.Minute),
	}
}

func (r *relayResource) setConfig(c *config) {
	r.Lock()
	defer r.Unlock()

	if c.pingInterval != 0 {
		r.pingInterval = c.pingInterval
	}
	r.debug = c.debug
}

// relayConfig returns what we need to persist to re-use our registration
// after a restart.
func (r *relayResource) relayConfig() *relayConfig {
	r.Lock()
	defer r.Unlock()

	c := &relayConfig{URL: r.url}
	if r.state != nil {
		state := *r.state
		c.State = &state
	}
	return c
}

func (r *relayResource) generate(ctx context.Context) (<-chan error, error) {
	r.Lock()
	url, state, pingInterval := r.url, r.state, r.pingInterval
	r.Unlock()

	conn, _, err := r.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	reg, err := r.register(conn, state)
	if err != nil {
		conn.Close()
		return nil, err
	}
	r.Lock()
	r.state = reg
	r.Unlock()
	l.Printf("Connected with code %s.", reg.Code)
	m.relayConnected.Set(1)

	ended := make(chan error, 1)
	go func() {
		defer close(ended)
		ended <- r.poll(ctx, conn, pingInterval)
	}()
	return ended, nil
}

// register presents our registration to the relay, or asks for a new one if
// we don't have one yet, and returns what the relay gave us.
func (r *relayResource) register(conn *websocket.Conn, state *message.Registration) (*message.Registration, error) {
	var data interface{} = message.Empty{}
	if state != nil {
		data = state
	}
	cmd, err := message.New(message.CmdRegister, data)
	if err != nil {
		return nil, err
	}
	if err := r.write(conn, cmd); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(registerTimeout)); err != nil {
		return nil, err
	}
	var resp message.Command
	if err := conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("failed to read registration: %w", err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}

	var reg message.Registration
	if err := resp.Decode(&reg); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRegistration, err)
	}
	if !reg.Valid() {
		return nil, errBadRegistration
	}
	return &reg, nil
}

func (r *relayResource) write(conn *websocket.Conn, cmd *message.Command) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(cmd)
}

// poll answers the relay's commands and pings the relay until the connection
// breaks or ctx is cancelled.  It is the only goroutine that writes to conn.
func (r *relayResource) poll(ctx context.Context, conn *websocket.Conn, pingInterval time.Duration) error {
	defer m.relayConnected.Set(0)
	defer conn.Close()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	quit := make(chan empty)
	defer close(quit)
	go func() {
		for {
			msgType, frame, err := conn.ReadMessage()
			if err == nil && msgType != websocket.TextMessage {
				err = errBadFrame
			}
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- frame:
			case <-quit:
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("relay connection broke: %w", err)
		case frame := <-frames:
			if err := r.handle(ctx, conn, frame); err != nil {
				return err
			}
		case <-ticker.C:
			ping, err := message.New(message.CmdPing, nil)
			if err != nil {
				return err
			}
			if err := r.write(conn, ping); err != nil {
				return fmt.Errorf("failed to ping relay: %w", err)
			}
			if r.isDebug() {
				l.Printf("Handled %d commands in the last minute.", r.counter.Rate())
			}
		}
	}
}

func (r *relayResource) isDebug() bool {
	r.Lock()
	defer r.Unlock()
	return r.debug
}

// handle answers a single command.  An error means that the connection is no
// longer usable.
func (r *relayResource) handle(ctx context.Context, conn *websocket.Conn, frame []byte) error {
	var cmd message.Command
	if err := json.Unmarshal(frame, &cmd); err != nil {
		return fmt.Errorf("failed to parse command: %w", err)
	}
	r.counter.Incr(1)
	start := time.Now()

	resp, err := r.dispatch(ctx, &cmd)
	if err == nil && resp != nil {
		err = r.write(conn, resp)
	}

	var result string
	switch {
	case err != nil:
		result = failBecause(err)
	case resp == nil:
		result = ignored
	default:
		result = success
	}
	m.relayCommands.With(prometheus.Labels{relayCmd: commandLabel(cmd.Command), outcome: result}).Inc()
	r.emit(newEvent(cmd.Command, result, time.Since(start)))

	if err != nil {
		return fmt.Errorf("failed to handle %s: %w", &cmd, err)
	}
	return nil
}

// commandLabel returns the label under which we count the given command.
func commandLabel(name string) string {
	switch name {
	case message.CmdRegister,
		message.CmdResponse,
		message.CmdPing,
		message.CmdPong,
		message.CmdGetVersionInfo,
		message.CmdGetValidationData:
		return name
	}
	return unknownCmd
}

// dispatch returns the response to the given command, or nil if the command
// needs no response.
func (r *relayResource) dispatch(ctx context.Context, cmd *message.Command) (*message.Command, error) {
	switch cmd.Command {
	case message.CmdGetVersionInfo:
		v, err := r.versions()
		if err != nil {
			return nil, err
		}
		return cmd.Respond(&message.VersionInfo{Versions: *v})
	case message.CmdGetValidationData:
		l.Println("Generating validation data.")
		data, err := r.gen.Generate(ctx)
		if err != nil {
			return nil, err
		}
		return cmd.Respond(message.NewValidationData(data))
	case message.CmdPong:
		return nil, nil
	default:
		l.Printf("Ignoring unknown command %s.", cmd)
		return nil, nil
	}
}

// emit hands the given event to the forwarder unless the forwarder is
// backed up.
func (r *relayResource) emit(e *event) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- e:
	default:
		l.Printf("Dropping event %s because forwarder is busy.", e)
	}
}
