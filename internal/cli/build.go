package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"github.com/cruciblehq/cruxgate/internal"
	"github.com/cruciblehq/cruxgate/internal/build"
	"github.com/cruciblehq/cruxgate/internal/protocol"
	"github.com/cruciblehq/cruxgate/internal/publish"
	"github.com/cruciblehq/cruxgate/internal/recipe"
	"github.com/cruciblehq/cruxgate/internal/runtime"
)

// Represents the 'cruxgate build' command.
type BuildCmd struct {
	File    string `short:"f" env:"CRUXGATE_RECIPE" help:"Recipe file. Defaults to cruxgate.yaml in the project directory, or built-in defaults." placeholder:"PATH" type:"path"`
	Output  string `short:"o" env:"CRUXGATE_OUTPUT" help:"Output directory. Defaults to dist next to the recipe." placeholder:"DIR" type:"path"`
	BuildID string `name:"build-id" help:"Build identifier. Generated when empty."`
	Daemon  bool   `help:"Submit the build to the running daemon."`
	Dir     string `arg:"" optional:"" default:"." help:"Project directory." type:"existingdir"`
}

// Executes the build command.
//
// The returned error carries the failing stage; see [ExitCode].
func (c *BuildCmd) Run(ctx context.Context) error {
	target := c.Dir
	if c.File != "" {
		target = c.File
	}

	r, err := recipe.Resolve(target)
	if err != nil {
		return err
	}

	output := c.Output
	if output == "" {
		output = filepath.Join(r.Dir(), "dist")
	}

	if c.Daemon {
		return c.remote(ctx, target, output)
	}
	return c.local(ctx, r, output)
}

func (c *BuildCmd) local(ctx context.Context, r *recipe.Recipe, output string) error {
	rt, err := runtime.New(RootCmd.Address, RootCmd.Namespace)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := build.Run(ctx, build.NewProvisioner(rt), build.Options{
		Recipe:    r,
		Output:    output,
		BuildID:   c.BuildID,
		Progress:  progressWriter(),
		Summary:   os.Stdout,
		Styled:    isTerminal(os.Stdout),
		Publisher: publish.ForRecipe(r),
	})
	if err != nil {
		return err
	}

	slog.Info("image finalized",
		"state", res.State,
		"path", res.Image.Path,
		"digest", res.Image.Digest,
		"port", res.Image.Port,
	)
	return nil
}

func (c *BuildCmd) remote(ctx context.Context, target, output string) error {
	abs, err := filepath.Abs(target)
	if err != nil {
		return err
	}

	raw, err := call(ctx, RootCmd.Socket, protocol.CmdBuild, &protocol.BuildRequest{
		Recipe:  abs,
		Output:  output,
		BuildID: c.BuildID,
	})
	if err != nil {
		return err
	}

	res, err := protocol.DecodePayload[protocol.BuildResult](raw)
	if err != nil {
		return err
	}

	if res.Report != "" {
		slog.Info("verification report", "status", res.Status, "path", res.Report)
	}
	if res.State != string(build.StateFinalized) {
		return &remoteBuildError{kind: res.Kind, message: res.Error}
	}

	slog.Info("image finalized", "build", res.BuildID, "path", res.Image, "digest", res.Digest)
	return nil
}

// Returns the installation progress destination: stderr when it is an
// interactive terminal and output is not quiet, nil otherwise.
func progressWriter() io.Writer {
	if internal.IsQuiet() || !isTerminal(os.Stderr) {
		return nil
	}
	return os.Stderr
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
