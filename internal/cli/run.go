package cli

import (
	"context"
	"time"

	"github.com/cruciblehq/cruxgate/internal/launch"
	"github.com/cruciblehq/cruxgate/internal/runtime"
)

// Represents the 'cruxgate run' command.
type RunCmd struct {
	Image        string        `arg:"" help:"Image archive produced by a passing build." type:"existingfile"`
	Port         int           `short:"p" help:"Port to probe for readiness. Defaults to the port the image declares."`
	ReadyTimeout time.Duration `name:"ready-timeout" default:"30s" help:"How long to wait for the port to accept connections."`
	GracePeriod  time.Duration `name:"grace-period" default:"10s" help:"Time between SIGTERM and SIGKILL on shutdown."`
	KeepImage    bool          `name:"keep-image" help:"Leave the imported image in containerd after exit."`
}

// Executes the run command.
//
// Blocks until the context is cancelled, then stops the process.
func (c *RunCmd) Run(ctx context.Context) error {
	rt, err := runtime.New(RootCmd.Address, RootCmd.Namespace)
	if err != nil {
		return err
	}
	defer rt.Close()

	return launch.Run(ctx, launch.NewRuntime(rt), launch.Options{
		Image:        c.Image,
		Port:         c.Port,
		ReadyTimeout: c.ReadyTimeout,
		GracePeriod:  c.GracePeriod,
		KeepImage:    c.KeepImage,
	})
}
