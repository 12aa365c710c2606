package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/brave-experiments/nacrelay/message"
)

const (
	defaultConfigPath = "config.json"
	defaultStatusAddr = "127.0.0.1:8080"
	defaultKeyExpiry  = time.Hour * 24
)

// relayConfig is what we persist across restarts: the relay's URL and the
// registration that the relay gave us.
type relayConfig struct {
	URL   string                `json:"url"`
	State *message.Registration `json:"state"`
}

// loadRelayConfig reads our persisted configuration.  A missing or
// unparsable file is not an error; we then start from scratch.
func loadRelayConfig(path string) *relayConfig {
	c := &relayConfig{}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.Printf("Failed to read %s: %v", path, err)
		}
		return c
	}
	if err := json.Unmarshal(raw, c); err != nil {
		l.Printf("Ignoring unparsable %s: %v", path, err)
		return &relayConfig{}
	}
	if c.State != nil && !c.State.Valid() {
		c.State = nil
	}
	return c
}

func (c *relayConfig) save(path string) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0600)
}

// parseFlags parses the given command line arguments and returns the
// resulting configuration.  The first return value contains the output that
// flag parsing produced, e.g., the usage text if -h was given.
func parseFlags(progname string, args []string) (string, *config, error) {
	var buf bytes.Buffer
	flags := flag.NewFlagSet(progname, flag.ContinueOnError)
	flags.SetOutput(&buf)

	conf := &config{}
	flags.StringVar(&conf.url, "url", "",
		"WebSocket URL of the registration relay (overrides the URL in the config file).")
	flags.StringVar(&conf.configPath, "config", defaultConfigPath,
		"File that holds the relay URL and our registration.")
	flags.StringVar(&conf.statusAddr, "status-addr", defaultStatusAddr,
		"Address of the status server.  Leave empty to disable the status server.")
	flags.BoolVar(&conf.verifyTLS, "verify-tls", false,
		"Verify the TLS certificates of Apple's identity service.")
	flags.BoolVar(&conf.debug, "debug", false,
		"Enable debug mode, which logs extra information.")
	flags.DurationVar(&conf.pingInterval, "ping-interval", defaultPingInterval,
		"Time interval between two pings to the relay.")
	flags.DurationVar(&conf.keyExpiry, "key-expiry", defaultKeyExpiry,
		"Time interval after which we rotate the key that anonymizes client addresses.")
	anonName := flags.String("anon-method", "cryptopan",
		"How we anonymize client addresses in logs: \"cryptopan\" or \"hmac\".")
	flags.DurationVar(&conf.fwdInterval, "forward-interval", defaultBatchPeriod,
		"Time interval after which we forward batched events to Kafka.")

	if err := flags.Parse(args); err != nil {
		return buf.String(), nil, err
	}
	method, err := anonMethod(*anonName)
	if err != nil {
		return buf.String(), nil, err
	}
	conf.anonMethod = method
	return buf.String(), conf, nil
}
