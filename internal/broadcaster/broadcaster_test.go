package broadcaster

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/nguyentantai21042004/inotify-broker/internal/logger"
	"github.com/nguyentantai21042004/inotify-broker/internal/queue"
	"github.com/nguyentantai21042004/inotify-broker/internal/registry"
	"github.com/nguyentantai21042004/inotify-broker/internal/watcher"
)

type client struct {
	conn  net.Conn
	lines chan string
}

// connect registers a piped subscriber and starts draining its client end
func connect(t *testing.T, r *registry.Registry) *client {
	t.Helper()
	server, conn := net.Pipe()
	t.Cleanup(func() { conn.Close() })

	c := &client{conn: conn, lines: make(chan string, 1024)}
	go func() {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
		close(c.lines)
	}()
	if err := r.Add(registry.NewSubscriber(server, time.Second)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return c
}

func (c *client) next(t *testing.T) string {
	t.Helper()
	select {
	case line, ok := <-c.lines:
		if !ok {
			t.Fatal("connection closed")
		}
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
	}
	return ""
}

func event(i int) watcher.ChangeEvent {
	return watcher.ChangeEvent{Path: "/tmp/a/f" + strconv.Itoa(i), Classes: watcher.Modify}
}

func TestEverySubscriberGetsEveryEventInOrder(t *testing.T) {
	tests := []struct {
		name        string
		events      int
		subscribers int
	}{
		{"no subscribers", 3, 0},
		{"no events", 0, 3},
		{"one to one", 5, 1},
		{"fan out", 20, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := queue.New(0)
			r := registry.New()
			b := New(q, r, logger.Nop(), 2)

			clients := make([]*client, tt.subscribers)
			for i := range clients {
				clients[i] = connect(t, r)
			}
			for i := 0; i < tt.events; i++ {
				q.Put(event(i))
			}
			q.Close()

			if err := b.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			for _, c := range clients {
				for i := 0; i < tt.events; i++ {
					if got, want := c.next(t), event(i).String(); got != want {
						t.Fatalf("line %d = %q, want %q", i, got, want)
					}
				}
			}
			stats := b.Stats()
			if stats.Published != uint64(tt.events) {
				t.Errorf("Published = %d, want %d", stats.Published, tt.events)
			}
			if stats.Deliveries != uint64(tt.events*tt.subscribers) {
				t.Errorf("Deliveries = %d, want %d", stats.Deliveries, tt.events*tt.subscribers)
			}
		})
	}
}

func TestDisconnectedSubscriberIsDropped(t *testing.T) {
	r := registry.New()
	b := New(queue.New(0), r, logger.Nop(), 0)
	ctx := context.Background()

	a := connect(t, r)
	gone := connect(t, r)
	c := connect(t, r)
	gone.conn.Close()

	if n := b.Broadcast(ctx, event(1)); n != 2 {
		t.Errorf("Broadcast() delivered = %d, want 2", n)
	}
	if got := a.next(t); got != event(1).String() {
		t.Errorf("a got %q", got)
	}
	if got := c.next(t); got != event(1).String() {
		t.Errorf("c got %q", got)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	if n := b.Broadcast(ctx, event(2)); n != 2 {
		t.Errorf("second Broadcast() delivered = %d, want 2", n)
	}
	if b.Stats().Failures != 1 {
		t.Errorf("Failures = %d, want 1", b.Stats().Failures)
	}
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	r := registry.New()
	b := New(queue.New(0), r, logger.Nop(), 0)
	ctx := context.Background()

	first := connect(t, r)
	b.Broadcast(ctx, event(1))
	second := connect(t, r)
	b.Broadcast(ctx, event(2))

	if got := first.next(t); got != event(1).String() {
		t.Errorf("first #1 = %q", got)
	}
	if got := first.next(t); got != event(2).String() {
		t.Errorf("first #2 = %q", got)
	}
	if got := second.next(t); got != event(2).String() {
		t.Errorf("second #1 = %q, want only the later event", got)
	}
}

func TestStalledSubscriberTimesOut(t *testing.T) {
	r := registry.New()
	b := New(queue.New(0), r, logger.Nop(), 0)

	server, stalled := net.Pipe()
	defer stalled.Close()
	r.Add(registry.NewSubscriber(server, 30*time.Millisecond))
	live := connect(t, r)

	if n := b.Broadcast(context.Background(), event(1)); n != 1 {
		t.Errorf("Broadcast() delivered = %d, want 1", n)
	}
	if got := live.next(t); got != event(1).String() {
		t.Errorf("live got %q", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want stalled subscriber removed", r.Len())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	b := New(queue.New(0), registry.New(), logger.Nop(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
