//go:build !linux

package watcher

import (
	"errors"

	"github.com/nguyentantai21042004/inotify-broker/internal/logger"
)

func newInotify(targets []WatchTarget, log logger.Logger) (Watcher, error) {
	return nil, errors.New("inotify backend is only available on linux, use fsnotify")
}
