// Package registry tracks the subscriber connections that receive broadcasts.
//
// Membership changes and snapshots are safe for concurrent use. A subscriber
// removed from the registry is closed, so it can never be written again even
// by a broadcast pass that snapshotted it earlier.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRegistryClosed is returned by Add after CloseAll
var ErrRegistryClosed = errors.New("registry closed")

type Registry struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscriber
	closed bool
}

func New() *Registry {
	return &Registry{subs: make(map[uint64]*Subscriber)}
}

// Add registers sub for every broadcast issued after it returns. Once the
// registry is closed the subscriber is closed instead.
func (r *Registry) Add(sub *Subscriber) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		sub.Close()
		return ErrRegistryClosed
	}
	r.subs[sub.ID()] = sub
	r.mu.Unlock()
	return nil
}

// Admit writes the welcome message and registers sub. A subscriber whose
// welcome fails is closed and never registered.
func (r *Registry) Admit(sub *Subscriber, welcome []byte) error {
	if err := sub.Write(welcome); err != nil {
		sub.Close()
		return fmt.Errorf("welcome %s: %w", sub.Addr(), err)
	}
	return r.Add(sub)
}

// Remove unregisters and closes sub. It reports whether sub was present;
// removing an absent subscriber is a no-op.
func (r *Registry) Remove(sub *Subscriber) bool {
	r.mu.Lock()
	_, ok := r.subs[sub.ID()]
	delete(r.subs, sub.ID())
	r.mu.Unlock()

	sub.Close()
	return ok
}

// Snapshot returns the current members for one broadcast pass
func (r *Registry) Snapshot() []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]*Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// CloseAll closes every member and rejects later additions
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	subs := r.subs
	r.subs = make(map[uint64]*Subscriber)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
