package config

import (
	"fmt"
	"net"
	"runtime"
	"strings"
	"time"

	"github.com/nguyentantai21042004/inotify-broker/internal/logger"
	"github.com/nguyentantai21042004/inotify-broker/internal/watcher"
)

const DefaultSocketPath = "/var/tmp/inotify.sock"

type Config struct {
	Watch    WatchConfig    `yaml:"watch"`
	Socket   SocketConfig   `yaml:"socket"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Queue    QueueConfig    `yaml:"queue"`
	Logging  LoggingConfig  `yaml:"logging"`
	Status   StatusConfig   `yaml:"status"`
}

type WatchConfig struct {
	Backend string   `yaml:"backend"`
	Events  []string `yaml:"events"`
	Paths   []string `yaml:"paths"`
}

type SocketConfig struct {
	Path        string  `yaml:"path"`
	AcceptRate  float64 `yaml:"accept_rate"`
	AcceptBurst int     `yaml:"accept_burst"`
}

type DeliveryConfig struct {
	// WriteTimeout bounds each subscriber write; negative disables it
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

type QueueConfig struct {
	MaxPending int `yaml:"max_pending"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type StatusConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultBackend is the raw inotify backend on linux and fsnotify elsewhere
func DefaultBackend() string {
	if runtime.GOOS == "linux" {
		return watcher.BackendInotify
	}
	return watcher.BackendFsnotify
}

func (c *Config) Validate() error {
	if len(c.Watch.Paths) == 0 {
		return fmt.Errorf("watch.paths is required")
	}
	for _, p := range c.Watch.Paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("watch.paths contains an empty path")
		}
	}
	if _, err := watcher.ParseClasses(c.Watch.Events); err != nil {
		return fmt.Errorf("watch.events: %w", err)
	}
	if c.Queue.MaxPending < 0 {
		return fmt.Errorf("queue.max_pending must not be negative")
	}
	if c.Socket.AcceptRate < 0 {
		return fmt.Errorf("socket.accept_rate must not be negative")
	}
	if c.Status.Listen != "" {
		if err := checkLoopback(c.Status.Listen); err != nil {
			return fmt.Errorf("status.listen: %w", err)
		}
	}

	if c.Watch.Backend == "" {
		c.Watch.Backend = DefaultBackend()
	}
	switch c.Watch.Backend {
	case watcher.BackendInotify, watcher.BackendFsnotify:
	default:
		return fmt.Errorf("watch.backend %q is not one of inotify, fsnotify", c.Watch.Backend)
	}

	if c.Socket.Path == "" {
		c.Socket.Path = DefaultSocketPath
	}
	if c.Socket.AcceptBurst <= 0 {
		c.Socket.AcceptBurst = 1
	}
	if c.Delivery.WriteTimeout == 0 {
		c.Delivery.WriteTimeout = 5 * time.Second
	}
	if c.Delivery.MaxConcurrent <= 0 {
		c.Delivery.MaxConcurrent = 16
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if !logger.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// Targets builds one watch target per configured path
func (c *Config) Targets() ([]watcher.WatchTarget, error) {
	classes, err := watcher.ParseClasses(c.Watch.Events)
	if err != nil {
		return nil, err
	}
	targets := make([]watcher.WatchTarget, 0, len(c.Watch.Paths))
	for _, p := range c.Watch.Paths {
		targets = append(targets, watcher.WatchTarget{Path: p, Classes: classes})
	}
	return targets, nil
}

// EffectiveWriteTimeout maps a negative write_timeout to no deadline
func (d DeliveryConfig) EffectiveWriteTimeout() time.Duration {
	if d.WriteTimeout < 0 {
		return 0
	}
	return d.WriteTimeout
}

func checkLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("host %q is not a loopback address", host)
	}
	return nil
}
