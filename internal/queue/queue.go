// Package queue buffers change events between the watcher and the broadcaster.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/nguyentantai21042004/inotify-broker/internal/watcher"
)

// ErrClosed is returned by Get once the queue is closed and drained
var ErrClosed = errors.New("queue closed")

// Queue is a FIFO of change events. Put never blocks. With a zero capacity
// the queue grows without bound; otherwise the oldest pending event is
// dropped to make room.
type Queue struct {
	mu       sync.Mutex
	items    []watcher.ChangeEvent
	head     int
	capacity int
	closed   bool
	ready    chan struct{}
	dropped  atomic.Uint64
}

// New creates a Queue. capacity <= 0 means unbounded.
func New(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Put enqueues ev. It reports false if the queue is closed.
func (q *Queue) Put(ev watcher.ChangeEvent) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if q.capacity > 0 && q.lenLocked() >= q.capacity {
		q.items[q.head] = watcher.ChangeEvent{}
		q.head++
		q.compactLocked()
		q.dropped.Add(1)
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Get removes and returns the oldest event, waiting until one is available
// or ctx is done.
func (q *Queue) Get(ctx context.Context) (watcher.ChangeEvent, error) {
	for {
		q.mu.Lock()
		if q.lenLocked() > 0 {
			ev := q.items[q.head]
			q.items[q.head] = watcher.ChangeEvent{}
			q.head++
			q.compactLocked()
			more := q.lenLocked() > 0
			q.mu.Unlock()
			if more {
				select {
				case q.ready <- struct{}{}:
				default:
				}
			}
			return ev, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return watcher.ChangeEvent{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return watcher.ChangeEvent{}, ctx.Err()
		case <-q.ready:
		}
	}
}

// Close stops accepting events. Pending events can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Len returns the number of pending events
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Dropped returns how many events were discarded by the capacity policy
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *Queue) lenLocked() int {
	return len(q.items) - q.head
}

// compactLocked reclaims the consumed prefix once it dominates the slice
func (q *Queue) compactLocked() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head > 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
}
