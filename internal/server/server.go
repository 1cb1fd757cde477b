// Package server wires the watcher, queue, registry, broadcaster and acceptor
// into one broker and runs them under a shared context.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/nguyentantai21042004/inotify-broker/internal/acceptor"
	"github.com/nguyentantai21042004/inotify-broker/internal/broadcaster"
	"github.com/nguyentantai21042004/inotify-broker/internal/config"
	"github.com/nguyentantai21042004/inotify-broker/internal/logger"
	"github.com/nguyentantai21042004/inotify-broker/internal/queue"
	"github.com/nguyentantai21042004/inotify-broker/internal/registry"
	"github.com/nguyentantai21042004/inotify-broker/internal/status"
	"github.com/nguyentantai21042004/inotify-broker/internal/watcher"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSocketSetup means the listening socket could not be prepared
	ErrSocketSetup = errors.New("socket setup failed")
	// ErrWatchSetup means no watch target could be registered
	ErrWatchSetup = errors.New("watch setup failed")
)

type Server struct {
	logger      logger.Logger
	watcher     watcher.Watcher
	queue       *queue.Queue
	registry    *registry.Registry
	broadcaster *broadcaster.Broadcaster
	acceptor    *acceptor.Acceptor
	status      *status.Server

	stateFn func() string
	running atomic.Bool
}

type Option func(*Server)

// WithState reports fn's value as the broker state on the status endpoint
func WithState(fn func() string) Option {
	return func(s *Server) { s.stateFn = fn }
}

// New performs every setup step. On error nothing is left open.
// cfg must already be validated.
func New(cfg *config.Config, log logger.Logger, opts ...Option) (*Server, error) {
	targets, err := cfg.Targets()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatchSetup, err)
	}

	w, err := watcher.New(cfg.Watch.Backend, targets, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWatchSetup, err)
	}

	reg := registry.New()
	acc, err := acceptor.Listen(cfg.Socket.Path, reg, log, acceptor.Options{
		WriteTimeout: cfg.Delivery.EffectiveWriteTimeout(),
		AcceptRate:   cfg.Socket.AcceptRate,
		AcceptBurst:  cfg.Socket.AcceptBurst,
	})
	if err != nil {
		w.Stop()
		return nil, fmt.Errorf("%w: %w", ErrSocketSetup, err)
	}

	q := queue.New(cfg.Queue.MaxPending)
	s := &Server{
		logger:      log,
		watcher:     w,
		queue:       q,
		registry:    reg,
		broadcaster: broadcaster.New(q, reg, log, cfg.Delivery.MaxConcurrent),
		acceptor:    acc,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Status.Listen != "" {
		st, err := status.Listen(cfg.Status.Listen, s, log)
		if err != nil {
			acc.Close()
			w.Stop()
			return nil, err
		}
		s.status = st
	}
	return s, nil
}

// Run serves until ctx is done or a component fails. Cancellation is a clean
// exit and returns nil.
func (s *Server) Run(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.watcher.Start(gctx, s.publish)
	})
	g.Go(func() error {
		return s.broadcaster.Run(gctx)
	})
	g.Go(func() error {
		return s.acceptor.Serve(gctx)
	})
	if s.status != nil {
		g.Go(func() error {
			return s.status.Serve(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		// Unblocks in-flight writes so the broadcast pass can unwind.
		s.queue.Close()
		s.registry.CloseAll()
		return nil
	})

	err := g.Wait()
	if pending := s.queue.Len(); pending > 0 {
		s.logger.Info(ctx, "Dropped %d undelivered events on shutdown", pending)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) publish(ctx context.Context, ev watcher.ChangeEvent) {
	s.logger.Debug(ctx, "Event: %s", ev)
	if !s.queue.Put(ev) {
		s.logger.Debug(ctx, "Queue closed, event dropped: %s", ev)
	}
}

// Close releases everything New acquired. It is only needed when Run is
// never called.
func (s *Server) Close() error {
	s.queue.Close()
	s.registry.CloseAll()
	errs := []error{s.acceptor.Close(), s.watcher.Stop()}
	if s.status != nil {
		errs = append(errs, s.status.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) SocketPath() string {
	return s.acceptor.Path()
}

// StatusAddr is the bound status address, or empty when disabled
func (s *Server) StatusAddr() string {
	if s.status == nil {
		return ""
	}
	return s.status.Addr()
}

func (s *Server) Targets() []watcher.WatchTarget {
	return s.watcher.Targets()
}

func (s *Server) Report() status.Report {
	stats := s.broadcaster.Stats()
	targets := s.watcher.Targets()
	paths := make([]string, 0, len(targets))
	for _, t := range targets {
		paths = append(paths, t.Path)
	}
	return status.Report{
		State:            s.state(),
		Subscribers:      s.registry.Len(),
		QueueDepth:       s.queue.Len(),
		EventsPublished:  stats.Published,
		Deliveries:       stats.Deliveries,
		DeliveryFailures: stats.Failures,
		EventsDropped:    s.queue.Dropped(),
		Targets:          paths,
	}
}

func (s *Server) state() string {
	if s.stateFn != nil {
		return s.stateFn()
	}
	if s.running.Load() {
		return "running"
	}
	return "stopped"
}
