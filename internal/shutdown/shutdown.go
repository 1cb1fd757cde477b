// Package shutdown turns termination signals into context cancellation.
//
// The coordinator moves Running -> Draining on the first signal and cancels
// its context; further signals are ignored. Stop moves it to Stopped once the
// caller has finished unwinding.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/nguyentantai21042004/inotify-broker/internal/logger"
)

type State int32

const (
	Running State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Coordinator struct {
	logger   logger.Logger
	signals  chan os.Signal
	notified bool
	state    atomic.Int32
	signaled atomic.Bool

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New starts listening for sigs. With no sigs the coordinator only reacts to
// Trigger, which keeps tests away from process-wide signal state.
func New(parent context.Context, log logger.Logger, sigs ...os.Signal) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		logger:  log,
		signals: make(chan os.Signal, 2),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if len(sigs) > 0 {
		signal.Notify(c.signals, sigs...)
		c.notified = true
	}
	go c.loop()
	return c
}

// Context is cancelled when draining begins
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Signaled reports whether draining was started by a signal
func (c *Coordinator) Signaled() bool {
	return c.signaled.Load()
}

// Trigger injects sig as if the process had received it
func (c *Coordinator) Trigger(sig os.Signal) {
	select {
	case c.signals <- sig:
	default:
	}
}

func (c *Coordinator) loop() {
	for {
		select {
		case sig := <-c.signals:
			c.drain(sig)
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) drain(sig os.Signal) {
	if !c.state.CompareAndSwap(int32(Running), int32(Draining)) {
		c.logger.Debug(c.ctx, "Signal: %s ignored, already %s", sig, c.State())
		return
	}
	c.signaled.Store(true)
	c.logger.Info(c.ctx, "Signal: %s caught, shutting down.", sig)
	c.cancel()
}

// Stop releases the signal subscription and marks the coordinator stopped
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		if c.notified {
			signal.Stop(c.signals)
		}
		c.state.Store(int32(Stopped))
		c.cancel()
		close(c.done)
	})
}
