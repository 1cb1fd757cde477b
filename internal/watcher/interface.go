package watcher

import (
	"context"
	"errors"
)

// ErrNoTargets is returned when none of the configured targets could be watched
var ErrNoTargets = errors.New("no watchable targets")

// Watcher produces change events for a fixed set of targets
type Watcher interface {
	// Start delivers events to handler until ctx is cancelled or the
	// backend fails. Watch handles are released before Start returns.
	Start(ctx context.Context, handler EventHandler) error
	Stop() error
	// Targets returns the targets that were successfully registered
	Targets() []WatchTarget
}

// EventHandler receives each change event in production order
type EventHandler func(ctx context.Context, ev ChangeEvent)

// TargetError reports a target that could not be watched at setup time
type TargetError struct {
	Target WatchTarget
	Err    error
}

func (e *TargetError) Error() string {
	return "watch " + e.Target.Path + ": " + e.Err.Error()
}

func (e *TargetError) Unwrap() error {
	return e.Err
}
