package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nguyentantai21042004/inotify-broker/internal/server"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	exitOK          = 0
	exitFailure     = 1
	exitSocketSetup = 2
	exitWatchSetup  = 3
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	var logged loggedError
	if err != nil && !errors.As(err, &logged) {
		fmt.Fprintf(os.Stderr, "inotifyd: %v\n", err)
	}
	return exitCode(err)
}

// loggedError marks an error that has already gone through the logger
type loggedError struct{ error }

func (e loggedError) Unwrap() error { return e.error }

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, server.ErrSocketSetup):
		return exitSocketSetup
	case errors.Is(err, server.ErrWatchSetup):
		return exitWatchSetup
	default:
		return exitFailure
	}
}
