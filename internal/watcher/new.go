package watcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/nguyentantai21042004/inotify-broker/internal/logger"
)

// Backend names accepted by New
const (
	BackendFsnotify = "fsnotify"
	BackendInotify  = "inotify"
)

// New creates a Watcher on the named backend. Targets that cannot be watched
// are logged and skipped; an error is returned only when none remain.
func New(backend string, targets []WatchTarget, log logger.Logger) (Watcher, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	switch backend {
	case BackendFsnotify, "":
		return newFsnotify(targets, log)
	case BackendInotify:
		return newInotify(targets, log)
	default:
		return nil, fmt.Errorf("unknown watch backend %q", backend)
	}
}

// setupResult folds per-target failures into the watcher-level outcome
func setupResult(log logger.Logger, ok []WatchTarget, failed []error) error {
	ctx := context.Background()
	for _, err := range failed {
		log.Warn(ctx, "Skipping unwatchable target: %v", err)
	}
	if len(ok) == 0 {
		return errors.Join(append([]error{ErrNoTargets}, failed...)...)
	}
	for _, t := range ok {
		log.Info(ctx, "Watching %s for %s", t.Path, t.Classes)
	}
	return nil
}
