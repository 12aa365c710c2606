package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kutil "github.com/brave-experiments/nacrelay/kafkautils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

const (
	defaultBatchPeriod = time.Second * 30
	defaultBatchSize   = 1000
	// outboxSize is the number of events that a forwarder buffers before the
	// relay connection starts dropping events.
	outboxSize = 100
)

var (
	errNothingToFwd = errors.New("nothing to forward")
	errKafkaWrite   = errors.New("failed to forward events to Kafka")
)

// kafkaWriter defines an interface that's implemented by kafka-go's
// kafka.Writer (which we use in production) and by dummyKafkaWriter (which we
// use for tests).
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type kafkaConfig struct {
	batchPeriod time.Duration
	batchSize   int
	certFile    string
	keyFile     string
	caFile      string
}

func defaultKafkaConfig() *kafkaConfig {
	return &kafkaConfig{
		batchPeriod: defaultBatchPeriod,
		batchSize:   defaultBatchSize,
		certFile:    kutil.DefaultKafkaCert,
		keyFile:     kutil.DefaultKafkaKey,
		caFile:      kutil.DefaultKafkaCACert,
	}
}

// kafkaForwarder implements a forwarder that sends Avro-encoded events to a
// Kafka broker.
type kafkaForwarder struct {
	sync.RWMutex
	msgBatch  []kafka.Message
	lastBatch time.Time
	conf      *kafkaConfig
	writer    kafkaWriter
	out       chan *event
	done      chan empty
}

func newKafkaForwarder() forwarder {
	return &kafkaForwarder{
		msgBatch:  []kafka.Message{},
		lastBatch: time.Now(),
		out:       make(chan *event, outboxSize),
		done:      make(chan empty),
	}
}

func (k *kafkaForwarder) setConfig(c *config) {
	k.Lock()
	defer k.Unlock()

	k.conf = c.kafkaConfig
	if k.conf == nil {
		k.conf = defaultKafkaConfig()
	}
	if c.fwdInterval != 0 {
		k.conf.batchPeriod = c.fwdInterval
	}
}

func (k *kafkaForwarder) outbox() chan *event {
	return k.out
}

func (k *kafkaForwarder) start() {
	k.Lock()
	if k.writer == nil {
		w, err := kutil.NewKafkaWriter(k.conf.certFile, k.conf.keyFile, k.conf.caFile)
		if err != nil {
			l.Printf("Failed to create Kafka writer; events will be dropped: %v", err)
		} else {
			k.writer = w
		}
	}
	period := k.conf.batchPeriod
	k.Unlock()

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-k.done:
				return
			case e := <-k.out:
				if err := k.send(e); err != nil {
					l.Printf("Failed to send event: %v", err)
				}
			case <-ticker.C:
				if err := k.flush(false); err != nil {
					l.Printf("Failed to flush events: %v", err)
				}
			}
		}
	}()
}

func (k *kafkaForwarder) stop() {
	close(k.done)
	if err := k.flush(true); err != nil {
		l.Printf("Failed to flush events while stopping: %v", err)
	}
}

func (k *kafkaForwarder) canBatchAge() bool {
	return time.Now().Add(-k.conf.batchPeriod).Before(k.lastBatch)
}

func (k *kafkaForwarder) canBatchGrow() bool {
	return len(k.msgBatch) < k.conf.batchSize
}

func (k *kafkaForwarder) resetBatch() {
	k.lastBatch = time.Now()
	k.msgBatch = []kafka.Message{}
}

func (k *kafkaForwarder) send(e *event) error {
	if e == nil {
		m.numForwarded.With(prometheus.Labels{outcome: failBecause(errNothingToFwd)}).Inc()
		return errNothingToFwd
	}
	blob, err := e.avro()
	if err != nil {
		m.numForwarded.With(prometheus.Labels{outcome: failBecause(err)}).Inc()
		return err
	}

	k.Lock()
	k.msgBatch = append(k.msgBatch, kafka.Message{
		Key:   []byte(e.id.String()),
		Value: blob,
	})
	// If Kafka is unreachable, we keep the most recent events only.
	if excess := len(k.msgBatch) - k.conf.batchSize; k.conf.batchSize > 0 && excess > 0 {
		l.Printf("Dropping %d old events because our batch is full.", excess)
		m.numForwarded.With(prometheus.Labels{outcome: dropped}).Add(float64(excess))
		k.msgBatch = append([]kafka.Message{}, k.msgBatch[excess:]...)
	}
	k.Unlock()

	// We batch messages until 1) the batch gets too large or 2) the batch gets
	// too old -- whichever comes first.
	return k.flush(false)
}

// flush writes the current batch to Kafka if the batch is due or if force is
// set.
func (k *kafkaForwarder) flush(force bool) error {
	k.Lock()
	defer k.Unlock()

	if len(k.msgBatch) == 0 {
		return nil
	}
	if !force && k.canBatchAge() && k.canBatchGrow() {
		return nil
	}
	if k.writer == nil {
		l.Printf("Dropping %d events because we have no Kafka writer.", len(k.msgBatch))
		k.resetBatch()
		return nil
	}

	err := k.writer.WriteMessages(context.Background(), k.msgBatch...)
	if err != nil {
		m.numForwarded.With(prometheus.Labels{outcome: failBecause(errKafkaWrite)}).Inc()
		return fmt.Errorf("%v: %w", errKafkaWrite, err)
	}
	l.Printf("Sent %d events to Kafka.", len(k.msgBatch))
	k.resetBatch()
	m.numForwarded.With(prometheus.Labels{outcome: success}).Inc()
	return nil
}
