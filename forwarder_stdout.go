package main

import "fmt"

// stdoutForwarder implements a forwarder that prints all events to stdout.
type stdoutForwarder struct {
	out  chan *event
	done chan empty
}

func newStdoutForwarder() forwarder {
	return &stdoutForwarder{
		out:  make(chan *event, outboxSize),
		done: make(chan empty),
	}
}

func (s *stdoutForwarder) setConfig(c *config) {}

func (s *stdoutForwarder) outbox() chan *event {
	return s.out
}

func (s *stdoutForwarder) start() {
	go func() {
		for {
			select {
			case <-s.done:
				return
			case e := <-s.out:
				blob, err := e.json()
				if err != nil {
					l.Printf("Failed to serialize event: %v", err)
					continue
				}
				fmt.Println(string(blob))
			}
		}
	}()
}

func (s *stdoutForwarder) stop() {
	close(s.done)
}
