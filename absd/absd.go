// Package absd is a client for the host's attestation daemon.  It exposes the
// daemon's three NAC routines as methods of Client; the actual attestation
// protocol runs inside the daemon.
package absd

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/brave-experiments/nacrelay/mach"
)

const (
	// ServiceName is the name under which the daemon registers with the
	// bootstrap server.
	ServiceName = "com.apple.absd"
	// Magic is the protocol tag that the daemon expects as first argument of
	// every routine.
	Magic = 0x50936603

	routineInit             = 1200
	routineKeyEstablishment = 1201
	routineSign             = 1202
)

var l = log.New(os.Stderr, "absd: ", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)

// Context is an opaque handle to a NAC session inside the daemon.
type Context uint64

// Client talks to the daemon over the given transport.  The daemon's port is
// looked up on first use and cached for the lifetime of the client.  A Client
// is safe for concurrent use.
type Client struct {
	sync.Mutex
	t    mach.Transport
	port mach.Port
}

// NewClient returns a new client that uses the given transport.
func NewClient(t mach.Transport) *Client {
	return &Client{t: t, port: mach.PortNull}
}

// resolve returns the daemon's port, looking it up if we don't have it yet.
// A failed lookup is not cached.
func (c *Client) resolve() (mach.Port, error) {
	c.Lock()
	defer c.Unlock()

	if c.port != mach.PortNull {
		return c.port, nil
	}
	port, err := c.t.LookUp(ServiceName)
	if err != nil {
		l.Printf("bootstrap_look_up for %q failed: %v", ServiceName, err)
		return mach.PortNull, err
	}
	c.port = port
	return port, nil
}

// call resolves the daemon's port and performs one round trip.
func (c *Client) call(req *mach.Message, descriptors int) (*mach.Message, error) {
	port, err := c.resolve()
	if err != nil {
		return nil, err
	}
	reply, err := c.t.Call(port, req)
	if err != nil {
		return nil, err
	}
	if err := mach.CheckReply(req, reply, descriptors); err != nil {
		return nil, err
	}
	return reply, nil
}

// Init creates a new NAC session from the given validation certificate.  It
// returns the session's context and the session request that must be sent
// to the validation server.
func (c *Client) Init(cert []byte) (Context, []byte, error) {
	req := &mach.Message{
		ID:          routineInit,
		Complex:     true,
		Descriptors: [][]byte{cert},
		Body:        mach.NewEncoder().Uint32(Magic).Uint32(uint32(len(cert))).Bytes(),
	}
	reply, err := c.call(req, 1)
	if err != nil {
		l.Printf("NACInit failed: %v", err)
		return 0, nil, fmt.Errorf("NACInit: %w", err)
	}

	d := mach.NewDecoder(reply.Body)
	ctx := Context(d.Uint64())
	count := d.Uint32()
	if err := d.Finish(); err != nil {
		l.Printf("NACInit returned malformed reply: %v", err)
		return 0, nil, fmt.Errorf("NACInit: %w", err)
	}
	if int(count) != len(reply.Descriptors[0]) {
		l.Printf("NACInit returned %d bytes but announced %d.", len(reply.Descriptors[0]), count)
		return 0, nil, fmt.Errorf("NACInit: %w", mach.MigTypeError)
	}

	return ctx, reply.Descriptors[0], nil
}

// KeyEstablishment hands the validation server's session response to the
// session identified by ctx.
func (c *Client) KeyEstablishment(ctx Context, sessionResponse []byte) error {
	req := &mach.Message{
		ID:          routineKeyEstablishment,
		Complex:     true,
		Descriptors: [][]byte{sessionResponse},
		Body: mach.NewEncoder().
			Uint32(Magic).
			Uint64(uint64(ctx)).
			Uint32(uint32(len(sessionResponse))).
			Bytes(),
	}
	if _, err := c.call(req, 0); err != nil {
		l.Printf("NACKeyEstablishment failed: %v", err)
		return fmt.Errorf("NACKeyEstablishment: %w", err)
	}
	return nil
}

// Sign signs the given data in the session identified by ctx and returns the
// signature.
func (c *Client) Sign(ctx Context, data []byte) ([]byte, error) {
	req := &mach.Message{
		ID:          routineSign,
		Complex:     true,
		Descriptors: [][]byte{data},
		Body: mach.NewEncoder().
			Uint32(Magic).
			Uint64(uint64(ctx)).
			Uint32(uint32(len(data))).
			Bytes(),
	}
	reply, err := c.call(req, 1)
	if err != nil {
		l.Printf("NACSign failed: %v", err)
		return nil, fmt.Errorf("NACSign: %w", err)
	}

	d := mach.NewDecoder(reply.Body)
	count := d.Uint32()
	if err := d.Finish(); err != nil {
		l.Printf("NACSign returned malformed reply: %v", err)
		return nil, fmt.Errorf("NACSign: %w", err)
	}
	if int(count) != len(reply.Descriptors[0]) {
		l.Printf("NACSign returned %d bytes but announced %d.", len(reply.Descriptors[0]), count)
		return nil, fmt.Errorf("NACSign: %w", mach.MigTypeError)
	}

	return reply.Descriptors[0], nil
}
