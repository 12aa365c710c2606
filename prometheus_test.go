package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/brave-experiments/nacrelay/absd"
	"github.com/brave-experiments/nacrelay/mach"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var errDummyNAC = errors.New("NACKeyEstablishment: status -44023")

// dummyNAC implements the nac.NAC interface.  Key establishment always fails.
type dummyNAC struct{}

func (d dummyNAC) Init(cert []byte) (absd.Context, []byte, error) {
	return absd.Context(1), []byte("request"), nil
}

func (d dummyNAC) KeyEstablishment(ctx absd.Context, resp []byte) error {
	return errDummyNAC
}

func (d dummyNAC) Sign(ctx absd.Context, data []byte) ([]byte, error) {
	return []byte("signature"), nil
}

func TestMeteredNAC(t *testing.T) {
	n := meteredNAC{dummyNAC{}}
	labels := m.nacCalls.WithLabelValues
	initOK := labels("NACInit", success)
	keyFailed := labels("NACKeyEstablishment", failBecause(errDummyNAC))
	keyOK := labels("NACKeyEstablishment", success)
	signOK := labels("NACSign", success)
	before := []float64{
		testutil.ToFloat64(initOK),
		testutil.ToFloat64(keyFailed),
		testutil.ToFloat64(keyOK),
		testutil.ToFloat64(signOK),
	}

	ctx, _, err := n.Init([]byte("cert"))
	if err != nil {
		t.Fatalf("Got unexpected error: %v", err)
	}
	assertEqual(t, testutil.ToFloat64(initOK)-before[0], float64(1))

	err = n.KeyEstablishment(ctx, []byte("response"))
	assertEqual(t, err, errDummyNAC)
	assertEqual(t, testutil.ToFloat64(keyFailed)-before[1], float64(1))
	assertEqual(t, testutil.ToFloat64(keyOK)-before[2], float64(0))

	sig, err := n.Sign(ctx, nil)
	if err != nil {
		t.Fatalf("Got unexpected error: %v", err)
	}
	assertEqual(t, string(sig), "signature")
	assertEqual(t, testutil.ToFloat64(signOK)-before[3], float64(1))
}

func TestFailBecause(t *testing.T) {
	assertEqual(t, failBecause(errors.New("foo")), "fail (other)")

	tests := []struct {
		err    error
		reason string
	}{
		{errBadFrame, errBadFrame.Error()},
		{fmt.Errorf("relay connection broke: %w", errBadFrame), errBadFrame.Error()},
		{fmt.Errorf("%w: missing secret", errBadRegistration), errBadRegistration.Error()},
		{fmt.Errorf("NACSign: %w", mach.MigServerDied), "MIG_SERVER_DIED"},
		{fmt.Errorf("NACInit: %w", mach.KernReturn(-44023)), "UNKNOWN"},
		{fmt.Errorf("failed to handle ping: %w", context.Canceled), "canceled"},
		{&websocket.CloseError{Code: websocket.CloseGoingAway}, "connection closed"},
		{&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, "network"},
		// Addresses and ports must not end up in labels.
		{fmt.Errorf("failed to connect to relay: dial tcp 10.0.0.1:%d: %w", 41234, errDummyNAC), "other"},
	}
	for _, test := range tests {
		assertEqual(t, failureReason(test.err), test.reason)
	}
}
