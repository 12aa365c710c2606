package main

import (
	"testing"
)

var ourForwarders = []func() forwarder{
	newStdoutForwarder,
	newKafkaForwarder,
}

func TestForwarderStartStop(t *testing.T) {
	c := &config{
		kafkaConfig: &kafkaConfig{
			batchPeriod: defaultBatchPeriod,
			batchSize:   defaultBatchSize,
		},
	}
	for _, newForwarder := range ourForwarders {
		f := newForwarder()
		f.setConfig(c)
		f.start()
		f.outbox() <- newEvent("pong", ignored, 0)
		f.stop()
	}
}
