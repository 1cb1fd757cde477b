package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/nguyentantai21042004/inotify-broker/internal/logger"
)

// fsnotifyClasses is everything the portable backend can observe
const fsnotifyClasses = Create | Modify | Delete | MovedFrom | Attrib

type fsnotifyWatcher struct {
	logger   logger.Logger
	watcher  *fsnotify.Watcher
	targets  []WatchTarget
	stopped  atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

func newFsnotify(targets []WatchTarget, log logger.Logger) (Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	var ok []WatchTarget
	var failed []error
	for _, t := range targets {
		if unsupported := t.Classes &^ fsnotifyClasses; unsupported != 0 {
			log.Warn(context.Background(), "fsnotify backend cannot report %s on %s", unsupported, t.Path)
		}
		if t.Classes&fsnotifyClasses == 0 {
			failed = append(failed, &TargetError{Target: t, Err: errors.New("no observable event classes for fsnotify backend")})
			continue
		}
		if err := watcher.Add(t.Path); err != nil {
			failed = append(failed, &TargetError{Target: t, Err: err})
			continue
		}
		ok = append(ok, WatchTarget{Path: filepath.Clean(t.Path), Classes: t.Classes})
	}

	if err := setupResult(log, ok, failed); err != nil {
		watcher.Close()
		return nil, err
	}

	return &fsnotifyWatcher{
		logger:  log,
		watcher: watcher,
		targets: ok,
	}, nil
}

// Start forwards translated events to handler until ctx is done
func (w *fsnotifyWatcher) Start(ctx context.Context, handler EventHandler) error {
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.stopped.Load() {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			if ev, match := w.translate(event); match {
				handler(ctx, ev)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				if w.stopped.Load() {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn(ctx, "Watcher queue overflow, events were lost")
				continue
			}
			w.logger.Error(ctx, "Watcher error: %v", err)
		}
	}
}

// Stop closes the underlying watcher, releasing every watch handle
func (w *fsnotifyWatcher) Stop() error {
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		w.stopErr = w.watcher.Close()
	})
	return w.stopErr
}

func (w *fsnotifyWatcher) Targets() []WatchTarget {
	return append([]WatchTarget(nil), w.targets...)
}

func (w *fsnotifyWatcher) translate(event fsnotify.Event) (ChangeEvent, bool) {
	target, ok := w.targetFor(event.Name)
	if !ok {
		return ChangeEvent{}, false
	}

	var classes EventClass
	if event.Has(fsnotify.Create) {
		classes |= Create
	}
	if event.Has(fsnotify.Write) {
		classes |= Modify
	}
	if event.Has(fsnotify.Remove) {
		classes |= Delete
	}
	if event.Has(fsnotify.Rename) {
		classes |= MovedFrom
	}
	if event.Has(fsnotify.Chmod) {
		classes |= Attrib
	}
	classes &= target.Classes
	if classes == 0 {
		return ChangeEvent{}, false
	}

	ev := ChangeEvent{Path: event.Name, Classes: classes}
	if classes&(Delete|MovedFrom) == 0 {
		if fi, err := os.Lstat(event.Name); err == nil {
			ev.IsDir = fi.IsDir()
		}
	}
	return ev, true
}

// targetFor matches an event path against the target itself or its direct children
func (w *fsnotifyWatcher) targetFor(name string) (WatchTarget, bool) {
	name = filepath.Clean(name)
	parent := filepath.Dir(name)
	for _, t := range w.targets {
		if t.Path == name || t.Path == parent {
			return t, true
		}
	}
	return WatchTarget{}, false
}
