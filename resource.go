package main

// This file implements a resource manager.  A resource is something that has
// to be established, that eventually ends, and that we then establish again:
// in our case, the connection to the registration relay.  The manager
// re-establishes the resource with exponential backoff whenever it ends or
// whenever someone asks for a refresh.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// maxResourceRegen is the minimum time between two refreshes.
	maxResourceRegen = time.Second * 15
	// maxResourceWait is how long refresh waits for the outcome of a
	// refresh.
	maxResourceWait = time.Second * 30
	// maxRetryDelay caps the delay between two attempts.
	maxRetryDelay = time.Second * 30
)

var (
	errResourceTimeout = errors.New("timed out waiting for resource")
	errManagerStopped  = errors.New("resource manager stopped")
)

// resource is anything that can be established.
type resource interface {
	// generate establishes the resource.  The returned channel receives the
	// error that ended the resource (nil if it ended cleanly) and is closed
	// afterwards.  Cancelling ctx tears the resource down.  Errors that
	// must not be retried are wrapped with backoff.Permanent.
	generate(ctx context.Context) (<-chan error, error)
}

type resourceState int

const (
	stateGenerating resourceState = iota
	stateGenerated
	stateFailed
)

func (s resourceState) String() string {
	switch s {
	case stateGenerating:
		return "generating"
	case stateGenerated:
		return "generated"
	case stateFailed:
		return "failed"
	}
	return fmt.Sprintf("unknown (%d)", int(s))
}

// resourceFailure describes the most recent failure to establish a resource.
type resourceFailure struct {
	err error
	// retryIn is zero if we gave up.
	retryIn time.Duration
}

func (f *resourceFailure) Error() string {
	if f.retryIn == 0 {
		return fmt.Sprintf("failed to generate resource: %v; not retrying", f.err)
	}
	return fmt.Sprintf("failed to generate resource: %v; retrying in %s", f.err, f.retryIn)
}

func (f *resourceFailure) Unwrap() error {
	return f.err
}

// resourceManager keeps a resource alive.
type resourceManager struct {
	sync.Mutex
	res         resource
	newBackoff  func() backoff.BackOff
	state       resourceState
	lastFailure *resourceFailure
	refreshedAt time.Time
	waiters     []chan error
	onGenerated func()
	update      chan empty
	updateNow   chan empty
	done        chan empty
	stopped     chan empty
}

func newExponentialBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = maxRetryDelay
	// Retry forever.
	b.MaxElapsedTime = 0
	return b
}

func newResourceManager(res resource) *resourceManager {
	return &resourceManager{
		res:        res,
		newBackoff: newExponentialBackoff,
		state:      stateGenerating,
		update:     make(chan empty, 1),
		updateNow:  make(chan empty, 1),
		done:       make(chan empty),
		stopped:    make(chan empty),
	}
}

func (r *resourceManager) start() {
	go r.loop()
}

func (r *resourceManager) stop() {
	close(r.done)
	<-r.stopped
	l.Println("Stopped resource manager.")
}

func notify(c chan empty) {
	select {
	case c <- empty{}:
	default:
	}
}

func drain(c chan empty) {
	for {
		select {
		case <-c:
		default:
			return
		}
	}
}

// resolve hands the given result to everyone who's waiting for a refresh, and
// discards pending refresh requests, which the result satisfies.
func (r *resourceManager) resolve(err error) {
	r.Lock()
	defer r.Unlock()

	drain(r.update)
	drain(r.updateNow)
	for _, w := range r.waiters {
		w <- err
	}
	r.waiters = nil
}

func (r *resourceManager) setState(s resourceState, f *resourceFailure) {
	r.Lock()
	defer r.Unlock()

	r.state = s
	r.lastFailure = f
	if s == stateGenerated {
		r.refreshedAt = time.Now()
	}
}

func (r *resourceManager) loop() {
	defer close(r.stopped)

	// base is cancelled once we're asked to stop.
	base, cancelAll := context.WithCancel(context.Background())
	defer cancelAll()
	go func() {
		select {
		case <-r.done:
			cancelAll()
		case <-r.stopped:
		}
	}()

	var ended <-chan error
	cancel := func() {}
	defer func() { cancel() }()

	for first := true; ; first = false {
		if !first {
			select {
			case err := <-ended:
				if err != nil {
					l.Printf("Resource ended: %v", err)
				} else {
					l.Println("Resource ended.")
				}
			case <-r.update:
			case <-r.updateNow:
			case <-r.done:
				return
			}
		}
		cancel()

		e, c, ok := r.generate(base)
		if !ok {
			return
		}
		ended, cancel = e, c
	}
}

// generate establishes the resource, retrying until it succeeds, until a
// permanent error occurs, or until we're stopped.
func (r *resourceManager) generate(base context.Context) (<-chan error, context.CancelFunc, bool) {
	b := r.newBackoff()
	b.Reset()

	for {
		r.setState(stateGenerating, nil)
		ctx, cancel := context.WithCancel(base)
		ended, err := r.res.generate(ctx)
		if err == nil {
			if r.onGenerated != nil {
				r.onGenerated()
			}
			r.setState(stateGenerated, nil)
			r.resolve(nil)
			return ended, cancel, true
		}
		cancel()
		l.Printf("Resource failed: %v", err)
		r.resolve(err)

		var permanent *backoff.PermanentError
		retryIn := b.NextBackOff()
		if errors.As(err, &permanent) || retryIn == backoff.Stop {
			r.setState(stateFailed, &resourceFailure{err: err})
			return nil, nil, false
		}
		r.setState(stateFailed, &resourceFailure{err: err, retryIn: retryIn})

		timer := time.NewTimer(retryIn)
		select {
		case <-timer.C:
		case <-r.updateNow:
			timer.Stop()
		case <-r.done:
			timer.Stop()
			return nil, nil, false
		}
	}
}

// currentState returns the manager's state and, if the state is
// stateFailed, the failure that got us there.
func (r *resourceManager) currentState() (resourceState, *resourceFailure) {
	r.Lock()
	defer r.Unlock()
	return r.state, r.lastFailure
}

// ensureNotFailed returns the most recent failure if the resource is
// currently in a failed state.
func (r *resourceManager) ensureNotFailed() error {
	if s, f := r.currentState(); s == stateFailed {
		return f
	}
	return nil
}

// requestUpdate asks the manager to re-establish the resource without
// waiting for the outcome.
func (r *resourceManager) requestUpdate() {
	notify(r.update)
}

// refresh re-establishes the resource unless that happened recently, and
// waits for the outcome.
func (r *resourceManager) refresh() error {
	return r.refreshOption(false)
}

// refreshNow is like refresh but also cuts short a pending retry delay.
func (r *resourceManager) refreshNow() error {
	return r.refreshOption(true)
}

func (r *resourceManager) refreshOption(now bool) error {
	r.Lock()
	if time.Since(r.refreshedAt) < maxResourceRegen {
		r.Unlock()
		return nil
	}
	w := make(chan error, 1)
	r.waiters = append(r.waiters, w)
	r.Unlock()

	if now {
		notify(r.updateNow)
	} else {
		notify(r.update)
	}

	timer := time.NewTimer(maxResourceWait)
	defer timer.Stop()
	select {
	case err := <-w:
		return err
	case <-timer.C:
		return errResourceTimeout
	case <-r.stopped:
		if err := r.ensureNotFailed(); err != nil {
			return err
		}
		return errManagerStopped
	}
}
