// Command inotify-sub connects to an inotifyd socket and logs every line it
// receives until the broker goes away or it is interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/nguyentantai21042004/inotify-broker/internal/config"
	"github.com/nguyentantai21042004/inotify-broker/internal/logger"
	"github.com/nguyentantai21042004/inotify-broker/internal/shutdown"
	"github.com/nguyentantai21042004/inotify-broker/pkg/subscriber"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "inotify-sub: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		socketPath string
		verbose    int
	)
	cmd := &cobra.Command{
		Use:           "inotify-sub",
		Short:         "Print events published by inotifyd",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.NewWithOutput(logger.LevelFromVerbosity(verbose), cmd.OutOrStdout(), cmd.ErrOrStderr())
			return listen(cmd.Context(), socketPath, log)
		},
	}
	cmd.Flags().StringVarP(&socketPath, "socket", "s", config.DefaultSocketPath, "unix socket path of the broker")
	cmd.Flags().CountVarP(&verbose, "verbose", "v", "increase log verbosity")
	return cmd
}

func listen(ctx context.Context, path string, log logger.Logger) error {
	coord := shutdown.New(ctx, log, syscall.SIGINT, syscall.SIGTERM)
	defer coord.Stop()
	ctx = coord.Context()

	client, err := subscriber.Dial(ctx, path)
	if err != nil {
		return err
	}
	defer client.Close()
	log.Info(ctx, "%s", client.Welcome())

	for {
		line, err := client.ReadLine(ctx)
		switch {
		case err == nil:
			log.Info(ctx, "%s", line)
		case errors.Is(err, io.EOF):
			log.Info(ctx, "Server has closed connection.")
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
}
