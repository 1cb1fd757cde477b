package main

import (
	"context"
	"fmt"
	"runtime"
	"syscall"

	"github.com/nguyentantai21042004/inotify-broker/internal/config"
	"github.com/nguyentantai21042004/inotify-broker/internal/logger"
	"github.com/nguyentantai21042004/inotify-broker/internal/server"
	"github.com/nguyentantai21042004/inotify-broker/internal/shutdown"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type options struct {
	configPath string
	socketPath string
	backend    string
	events     []string
	verbose    int
}

func (o *options) bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "path to a YAML config file")
	fs.StringVarP(&o.socketPath, "socket", "s", "", "unix socket path (default "+config.DefaultSocketPath+")")
	fs.StringVar(&o.backend, "backend", "", "watch backend: inotify or fsnotify")
	fs.StringSliceVar(&o.events, "events", nil, "event classes to watch, e.g. open,attrib,access")
	fs.CountVarP(&o.verbose, "verbose", "v", "increase log verbosity")
}

// config loads the optional file, applies flags set on fs and validates
func (o *options) config(fs *pflag.FlagSet, paths []string) (*config.Config, error) {
	cfg, err := config.LoadOptional(o.configPath)
	if err != nil {
		return nil, err
	}

	if fs.Changed("socket") {
		cfg.Socket.Path = o.socketPath
	}
	if fs.Changed("backend") {
		cfg.Watch.Backend = o.backend
	}
	if fs.Changed("events") {
		cfg.Watch.Events = o.events
	}
	if len(paths) > 0 {
		cfg.Watch.Paths = paths
	}
	if o.verbose > 0 {
		cfg.Logging.Level = logger.LevelFromVerbosity(o.verbose)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "inotifyd [flags] PATH...",
		Short: "Publish filesystem change events to unix socket subscribers",
		Long: `inotifyd watches the given paths and writes one line per change event
to every client connected to its unix socket.

Paths may also be listed under watch.paths in the config file.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd.Flags(), args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	opts.bind(cmd.Flags())

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the inotifyd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "inotifyd %s\n", version)
		},
	})
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Logging.Level)

	coord := shutdown.New(ctx, log, syscall.SIGINT, syscall.SIGTERM)
	defer coord.Stop()

	srv, err := server.New(cfg, log, server.WithState(func() string {
		return coord.State().String()
	}))
	if err != nil {
		log.Error(ctx, "Setup failed: %v", err)
		return loggedError{err}
	}

	log.Info(ctx, "========================================")
	log.Info(ctx, "inotify broker %s", version)
	log.Info(ctx, "========================================")
	log.Info(ctx, "System: %s/%s", runtime.GOOS, runtime.GOARCH)
	log.Info(ctx, "Backend: %s", cfg.Watch.Backend)
	for _, t := range srv.Targets() {
		log.Info(ctx, "Watching: %s (%s)", t.Path, t.Classes)
	}
	log.Info(ctx, "Socket: %s", srv.SocketPath())
	if addr := srv.StatusAddr(); addr != "" {
		log.Info(ctx, "Status: http://%s/status", addr)
	}
	log.Info(ctx, "Press Ctrl+C to stop")
	log.Info(ctx, "========================================")

	if err := srv.Run(coord.Context()); err != nil {
		log.Error(ctx, "Broker error: %v", err)
		return loggedError{err}
	}
	log.Info(ctx, "Broker stopped")
	return nil
}
