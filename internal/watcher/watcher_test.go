package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nguyentantai21042004/inotify-broker/internal/logger"
)

// collect runs w until it has seen an event for every wanted path or times out
func collect(t *testing.T, w Watcher, trigger func(), want ...string) map[string]ChangeEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan ChangeEvent, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Start(ctx, func(_ context.Context, ev ChangeEvent) {
			events <- ev
		})
	}()

	// fsnotify registers synchronously in New, so the trigger cannot race the watch
	trigger()

	seen := make(map[string]ChangeEvent)
	for len(seen) < len(want) {
		select {
		case ev := <-events:
			for _, p := range want {
				if ev.Path == p {
					seen[p] = ev
				}
			}
		case <-ctx.Done():
			t.Fatalf("timed out, saw %v want %v", seen, want)
		}
	}

	cancel()
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("Start() error = %v", err)
	}
	return seen
}

func TestFsnotifyDeliversCreate(t *testing.T) {
	dir := t.TempDir()
	w, err := New(BackendFsnotify, []WatchTarget{{Path: dir, Classes: Create}}, logger.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	file := filepath.Join(dir, "video.txt")
	seen := collect(t, w, func() {
		if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}, file)

	if ev := seen[file]; ev.Classes != Create || ev.IsDir {
		t.Errorf("event = %+v, want CREATE on file", ev)
	}
}

func TestOneUnwatchablePathAmongThree(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	w, err := New(BackendFsnotify, []WatchTarget{
		{Path: a, Classes: Create},
		{Path: missing, Classes: Create},
		{Path: b, Classes: Create},
	}, logger.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := len(w.Targets()); got != 2 {
		t.Fatalf("Targets() len = %d, want 2", got)
	}

	fa, fb := filepath.Join(a, "one"), filepath.Join(b, "two")
	collect(t, w, func() {
		os.WriteFile(fa, nil, 0644)
		os.WriteFile(fb, nil, 0644)
	}, fa, fb)
}

func TestAllTargetsFail(t *testing.T) {
	root := t.TempDir()
	_, err := New(BackendFsnotify, []WatchTarget{
		{Path: filepath.Join(root, "x"), Classes: Create},
		{Path: filepath.Join(root, "y"), Classes: Create},
	}, logger.Nop())
	if !errors.Is(err, ErrNoTargets) {
		t.Fatalf("New() error = %v, want ErrNoTargets", err)
	}
	var te *TargetError
	if !errors.As(err, &te) {
		t.Errorf("New() error = %v, want a TargetError in the chain", err)
	}
}

func TestNewRejectsEmptyAndUnknown(t *testing.T) {
	if _, err := New(BackendFsnotify, nil, logger.Nop()); !errors.Is(err, ErrNoTargets) {
		t.Errorf("New(nil) error = %v, want ErrNoTargets", err)
	}
	if _, err := New("kqueue-ish", []WatchTarget{{Path: t.TempDir(), Classes: Create}}, logger.Nop()); err == nil {
		t.Error("New() with unknown backend should fail")
	}
}

func TestFsnotifyOnlyUnsupportedClasses(t *testing.T) {
	_, err := New(BackendFsnotify, []WatchTarget{{Path: t.TempDir(), Classes: Access | Open}}, logger.Nop())
	if !errors.Is(err, ErrNoTargets) {
		t.Fatalf("New() error = %v, want ErrNoTargets", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w, err := New(BackendFsnotify, []WatchTarget{{Path: t.TempDir(), Classes: Create}}, logger.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("first Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	// Start after Stop returns promptly instead of blocking
	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background(), func(context.Context, ChangeEvent) {}) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() after Stop error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() after Stop did not return")
	}
}
