package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/brave-experiments/nacrelay/absd"
	"github.com/brave-experiments/nacrelay/gestalt"
	kutil "github.com/brave-experiments/nacrelay/kafkautils"
	"github.com/brave-experiments/nacrelay/mach"
	"github.com/brave-experiments/nacrelay/message"
	"github.com/brave-experiments/nacrelay/nac"
)

var l = log.New(os.Stderr, "nacrelay: ", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)

// bootstrap configures and starts all components, waits until done is
// closed, and then stops the components in reverse order.
func bootstrap(conf *config, c *components, done chan empty) {
	for _, cfg := range []configurer{c.f, c.relay, c.s} {
		cfg.setConfig(conf)
	}

	ss := []startStopper{c.f, c.rm, c.s}
	for _, s := range ss {
		s.start()
	}
	l.Println("Started all components.")

	<-done
	for i := len(ss) - 1; i >= 0; i-- {
		ss[i].stop()
	}
	l.Println("Stopped all components.")
}

// newComponents wires our components together.  The relay connection reports
// to the forwarder, and the status server watches the resource manager.
func newComponents(
	conf *config,
	rc *relayConfig,
	gen validationGenerator,
	versions func() (*message.Versions, error),
	f forwarder,
) *components {
	url := rc.URL
	if conf.url != "" {
		url = conf.url
	}
	if url == "" {
		url = defaultRelayURL
	}

	relay := newRelayResource(url, rc.State, gen, versions, f.outbox())
	rm := newResourceManager(relay)
	rm.onGenerated = func() {
		// Persist our (possibly new) registration.
		if err := relay.relayConfig().save(conf.configPath); err != nil {
			l.Printf("Failed to save %s: %v", conf.configPath, err)
		}
	}
	return &components{
		relay: relay,
		rm:    rm,
		s:     newStatusServer(rm, relay),
		f:     f,
	}
}

func main() {
	out, conf, err := parseFlags(os.Args[0], os.Args[1:])
	if err != nil {
		if out != "" {
			l.Print(out)
		}
		l.Fatalf("Failed to parse flags: %v", err)
	}

	var f forwarder
	if kutil.Configured() {
		l.Println("Forwarding events to Kafka.")
		conf.kafkaConfig = defaultKafkaConfig()
		f = newKafkaForwarder()
	} else {
		f = newStdoutForwarder()
	}

	client := absd.NewClient(mach.NewHostTransport())
	gen := nac.NewGenerator(meteredNAC{client}, conf.verifyTLS)
	answerer := gestalt.Host()
	versions := func() (*message.Versions, error) {
		return deviceVersions(answerer)
	}

	c := newComponents(conf, loadRelayConfig(conf.configPath), gen, versions, f)

	done := make(chan empty)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		l.Printf("Received %s; shutting down.", sig)
		close(done)
	}()

	bootstrap(conf, c, done)
}
