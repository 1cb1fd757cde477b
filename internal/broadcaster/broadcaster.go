// Package broadcaster drains the event queue and fans each event out to every
// registered subscriber.
//
// One event is fully delivered, or failed and removed, for all subscribers
// before the next event is taken, so every subscriber sees events in
// production order. A slow subscriber therefore delays all others, bounded by
// the subscriber write timeout.
package broadcaster

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/nguyentantai21042004/inotify-broker/internal/logger"
	"github.com/nguyentantai21042004/inotify-broker/internal/queue"
	"github.com/nguyentantai21042004/inotify-broker/internal/registry"
	"github.com/nguyentantai21042004/inotify-broker/internal/watcher"
)

const defaultMaxConcurrent = 16

// Stats are cumulative delivery counters
type Stats struct {
	Published  uint64 `json:"events_published"`
	Deliveries uint64 `json:"deliveries"`
	Failures   uint64 `json:"delivery_failures"`
}

type Broadcaster struct {
	queue    *queue.Queue
	registry *registry.Registry
	logger   logger.Logger
	slots    writeSlots

	published  atomic.Uint64
	deliveries atomic.Uint64
	failures   atomic.Uint64
}

// New creates a Broadcaster writing to at most maxConcurrent subscribers at once
func New(q *queue.Queue, r *registry.Registry, log logger.Logger, maxConcurrent int) *Broadcaster {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &Broadcaster{
		queue:    q,
		registry: r,
		logger:   log,
		slots:    newWriteSlots(maxConcurrent),
	}
}

// Run broadcasts queued events until ctx is done or the queue is closed
func (b *Broadcaster) Run(ctx context.Context) error {
	b.logger.Debug(ctx, "Broadcaster started")
	for {
		ev, err := b.queue.Get(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				b.logger.Debug(ctx, "Event queue closed, broadcaster exiting")
				return nil
			}
			return err
		}
		b.Broadcast(ctx, ev)
	}
}

// Broadcast performs one pass for ev and returns the number of subscribers
// that received it. Subscribers whose write fails are removed.
func (b *Broadcaster) Broadcast(ctx context.Context, ev watcher.ChangeEvent) int {
	b.published.Add(1)
	payload := []byte(ev.String() + "\n")

	subs := b.registry.Snapshot()
	if len(subs) == 0 {
		b.logger.Debug(ctx, "No subscribers for %s", ev)
		return 0
	}

	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	for _, sub := range subs {
		if err := b.slots.acquire(ctx); err != nil {
			break
		}
		wg.Add(1)
		go func(sub *registry.Subscriber) {
			defer wg.Done()
			defer b.slots.release()

			if err := sub.Write(payload); err != nil {
				b.drop(ctx, sub, err)
				return
			}
			delivered.Add(1)
			b.deliveries.Add(1)
		}(sub)
	}
	wg.Wait()

	return int(delivered.Load())
}

func (b *Broadcaster) drop(ctx context.Context, sub *registry.Subscriber, err error) {
	if !b.registry.Remove(sub) {
		return
	}
	b.failures.Add(1)
	if errors.Is(err, registry.ErrSubscriberClosed) {
		b.logger.Debug(ctx, "Subscriber %d closed during broadcast", sub.ID())
		return
	}
	b.logger.Info(ctx, "Failed to deliver message to subscriber %d (%s): %v", sub.ID(), sub.Addr(), err)
}

func (b *Broadcaster) Stats() Stats {
	return Stats{
		Published:  b.published.Load(),
		Deliveries: b.deliveries.Load(),
		Failures:   b.failures.Load(),
	}
}
