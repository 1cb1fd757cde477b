package subscriber

import (
	"context"

	"github.com/nguyentantai21042004/inotify-broker/internal/watcher"
)

// Client reads the line stream of one broker subscription
type Client interface {
	// Welcome is the greeting line the broker sent on connect
	Welcome() string
	// ReadLine returns the next raw line without its terminator. It returns
	// io.EOF once the broker closes the connection.
	ReadLine(ctx context.Context) (string, error)
	// Next reads and parses the next event line
	Next(ctx context.Context) (watcher.ChangeEvent, error)
	Close() error
}
