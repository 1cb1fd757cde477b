// Package acceptor listens on a unix stream socket and admits subscribers.
package acceptor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nguyentantai21042004/inotify-broker/internal/logger"
	"github.com/nguyentantai21042004/inotify-broker/internal/registry"
	"golang.org/x/time/rate"
)

// Welcome is written once to every new subscriber before any event
const Welcome = "You are now subscribed to inotify events.\n"

const acceptRetryDelay = 50 * time.Millisecond

// Options tune connection handling
type Options struct {
	// WriteTimeout bounds every write to an admitted subscriber
	WriteTimeout time.Duration
	// AcceptRate limits accepted connections per second. Zero disables it.
	AcceptRate  float64
	AcceptBurst int
}

type Acceptor struct {
	path     string
	listener *net.UnixListener
	registry *registry.Registry
	logger   logger.Logger
	opts     Options
	limiter  *rate.Limiter

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Listen prepares the socket path and binds it. Any error is a setup failure;
// nothing is left listening when it is returned.
func Listen(path string, r *registry.Registry, log logger.Logger, opts Options) (*Acceptor, error) {
	if path == "" {
		return nil, errors.New("socket path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if err := removeStale(path); err != nil {
		return nil, err
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	ln.SetUnlinkOnClose(true)

	a := &Acceptor{
		path:     path,
		listener: ln,
		registry: r,
		logger:   log,
		opts:     opts,
	}
	if opts.AcceptRate > 0 {
		burst := opts.AcceptBurst
		if burst <= 0 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(opts.AcceptRate), burst)
	}
	return a, nil
}

// removeStale deletes a socket left behind by a previous run. Anything else
// at the path is refused rather than deleted.
func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat socket path: %w", err)
	}
	if fi.Mode().Type() != os.ModeSocket {
		return fmt.Errorf("socket path %s exists and is not a socket", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

// Serve accepts subscribers until ctx is done, then closes the listener and
// waits for pending welcomes to finish.
func (a *Acceptor) Serve(ctx context.Context) error {
	defer a.wg.Wait()
	defer a.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			a.Close()
		case <-done:
		}
	}()

	a.logger.Info(ctx, "Accepting subscribers on %s", a.path)
	for {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return ctx.Err()
			}
		}

		conn, err := a.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			a.logger.Warn(ctx, "Accept failed: %v", err)
			select {
			case <-time.After(acceptRetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.admit(ctx, conn)
		}()
	}
}

func (a *Acceptor) admit(ctx context.Context, conn net.Conn) {
	sub := registry.NewSubscriber(conn, a.opts.WriteTimeout)
	if err := a.registry.Admit(sub, []byte(Welcome)); err != nil {
		if errors.Is(err, registry.ErrRegistryClosed) {
			return
		}
		a.logger.Info(ctx, "Dropping subscriber %d: %v", sub.ID(), err)
		return
	}
	a.logger.Info(ctx, "Subscriber %d connected from %s", sub.ID(), sub.Addr())
}

// Close stops accepting and removes the socket file
func (a *Acceptor) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.listener.Close()
	})
	return a.closeErr
}

func (a *Acceptor) Path() string {
	return a.path
}
