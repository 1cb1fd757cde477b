//go:build linux

package watcher

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nguyentantai21042004/inotify-broker/internal/logger"
	"golang.org/x/sys/unix"
)

var inotifyMasks = []struct {
	class EventClass
	mask  uint32
}{
	{Access, unix.IN_ACCESS},
	{Modify, unix.IN_MODIFY},
	{Attrib, unix.IN_ATTRIB},
	{CloseWrite, unix.IN_CLOSE_WRITE},
	{CloseNoWrite, unix.IN_CLOSE_NOWRITE},
	{Open, unix.IN_OPEN},
	{MovedFrom, unix.IN_MOVED_FROM},
	{MovedTo, unix.IN_MOVED_TO},
	{Create, unix.IN_CREATE},
	{Delete, unix.IN_DELETE},
	{DeleteSelf, unix.IN_DELETE_SELF},
	{MoveSelf, unix.IN_MOVE_SELF},
}

func toInotifyMask(c EventClass) uint32 {
	var mask uint32
	for _, m := range inotifyMasks {
		if c&m.class != 0 {
			mask |= m.mask
		}
	}
	return mask
}

func fromInotifyMask(mask uint32) EventClass {
	var c EventClass
	for _, m := range inotifyMasks {
		if mask&m.mask != 0 {
			c |= m.class
		}
	}
	return c
}

type inotifyWatcher struct {
	logger   logger.Logger
	file     *os.File
	targets  []WatchTarget
	mu       sync.Mutex
	watches  map[int32]WatchTarget
	stopped  atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

func newInotify(targets []WatchTarget, log logger.Logger) (Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify init: %w", err)
	}

	watches := make(map[int32]WatchTarget, len(targets))
	var ok []WatchTarget
	var failed []error
	for _, t := range targets {
		t.Path = filepath.Clean(t.Path)
		wd, err := unix.InotifyAddWatch(fd, t.Path, toInotifyMask(t.Classes))
		if err != nil {
			failed = append(failed, &TargetError{Target: t, Err: err})
			continue
		}
		watches[int32(wd)] = t
		ok = append(ok, t)
	}

	if err := setupResult(log, ok, failed); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &inotifyWatcher{
		logger:  log,
		file:    os.NewFile(uintptr(fd), "inotify"),
		targets: ok,
		watches: watches,
	}, nil
}

// Start reads kernel notifications until ctx is done. Closing the descriptor
// unblocks the pending read.
func (w *inotifyWatcher) Start(ctx context.Context, handler EventHandler) error {
	defer w.Stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-done:
		}
	}()

	buf := make([]byte, (unix.SizeofInotifyEvent+unix.NAME_MAX+1)*64)
	for {
		n, err := w.file.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if w.stopped.Load() || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read inotify events: %w", err)
		}
		if n < unix.SizeofInotifyEvent {
			w.logger.Warn(ctx, "Short inotify read of %d bytes", n)
			continue
		}
		w.dispatch(ctx, buf[:n], handler)
	}
}

func (w *inotifyWatcher) dispatch(ctx context.Context, buf []byte, handler EventHandler) {
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buf); {
		wd := int32(binary.NativeEndian.Uint32(buf[offset:]))
		mask := binary.NativeEndian.Uint32(buf[offset+4:])
		nameLen := int(binary.NativeEndian.Uint32(buf[offset+12:]))

		start := offset + unix.SizeofInotifyEvent
		end := start + nameLen
		if end > len(buf) {
			w.logger.Warn(ctx, "Truncated inotify event dropped")
			return
		}
		name := strings.TrimRight(string(buf[start:end]), "\x00")
		offset = end

		if mask&unix.IN_Q_OVERFLOW != 0 {
			w.logger.Warn(ctx, "Inotify queue overflow, events were lost")
			continue
		}

		w.mu.Lock()
		target, ok := w.watches[wd]
		if ok && mask&unix.IN_IGNORED != 0 {
			delete(w.watches, wd)
		}
		w.mu.Unlock()
		if !ok {
			continue
		}
		if mask&unix.IN_IGNORED != 0 {
			w.logger.Warn(ctx, "Watch on %s was removed by the kernel", target.Path)
			continue
		}

		classes := fromInotifyMask(mask) & target.Classes
		if classes == 0 {
			continue
		}
		path := target.Path
		if name != "" {
			path = filepath.Join(path, name)
		}
		handler(ctx, ChangeEvent{
			Path:    path,
			Classes: classes,
			IsDir:   mask&unix.IN_ISDIR != 0,
		})
	}
}

// Stop closes the inotify descriptor, which drops every watch
func (w *inotifyWatcher) Stop() error {
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		w.stopErr = w.file.Close()
	})
	return w.stopErr
}

func (w *inotifyWatcher) Targets() []WatchTarget {
	return append([]WatchTarget(nil), w.targets...)
}
