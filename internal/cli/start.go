package cli

import (
	"context"
	"log/slog"

	"github.com/cruciblehq/cruxgate/internal/server"
)

// Represents the 'cruxgate start' command.
type StartCmd struct{}

// Executes the start command.
//
// Starts the build daemon on a Unix domain socket and blocks until the
// context is cancelled (e.g. via SIGINT or SIGTERM) or a shutdown command
// arrives.
func (c *StartCmd) Run(ctx context.Context) error {
	srv, err := server.New(server.Config{
		SocketPath:          RootCmd.Socket,
		ContainerdAddress:   RootCmd.Address,
		ContainerdNamespace: RootCmd.Namespace,
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	slog.Info("cruxgate daemon is running")

	select {
	case <-ctx.Done():
	case <-srv.Done():
	}

	slog.Info("shutting down")
	return srv.Stop()
}
