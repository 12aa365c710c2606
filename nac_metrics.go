package main

import (
	"github.com/brave-experiments/nacrelay/absd"
	"github.com/brave-experiments/nacrelay/nac"
	"github.com/prometheus/client_golang/prometheus"
)

// meteredNAC counts the calls that we make to the attestation daemon.
type meteredNAC struct {
	nac.NAC
}

func count(name string, err error) {
	result := success
	if err != nil {
		result = failBecause(err)
	}
	m.nacCalls.With(prometheus.Labels{routine: name, outcome: result}).Inc()
}

func (n meteredNAC) Init(cert []byte) (absd.Context, []byte, error) {
	ctx, req, err := n.NAC.Init(cert)
	count("NACInit", err)
	return ctx, req, err
}

func (n meteredNAC) KeyEstablishment(ctx absd.Context, resp []byte) error {
	err := n.NAC.KeyEstablishment(ctx, resp)
	count("NACKeyEstablishment", err)
	return err
}

func (n meteredNAC) Sign(ctx absd.Context, data []byte) ([]byte, error) {
	sig, err := n.NAC.Sign(ctx, data)
	count("NACSign", err)
	return sig, err
}
