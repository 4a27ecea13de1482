package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/cruciblehq/cruxgate/internal/paths"
	"github.com/cruciblehq/cruxgate/internal/recipe"
	"github.com/cruciblehq/cruxgate/internal/report"
)

// Uploads a persisted verification report.
type Publisher interface {
	Publish(ctx context.Context, rep *report.Report) error
}

// Controls a gated build.
type Options struct {
	Recipe       *recipe.Recipe // Recipe to build.
	Output       string         // Directory for the report and, on success, the image.
	BuildID      string         // Build identifier. Generated when empty.
	Progress     io.Writer      // Installation progress bar destination; nil logs each install instead.
	Summary      io.Writer      // Verification summary destination; nil to skip.
	Styled       bool           // Whether the summary uses terminal styling.
	Publisher    Publisher      // Optional report upload.
	OnTransition func(State)    // Called on every state change, starting with INIT.
}

// Returned by [Run], also alongside a verification failure.
type Result struct {
	BuildID string         // Build identifier.
	State   State          // Final state: FINALIZED or ABORTED.
	Report  *report.Report // Verification report; nil if the gate never ran.
	Image   *Image         // Finalized image; nil unless State is FINALIZED.
}

// Executes a gated build.
//
// Dependencies are installed, the source is staged, and the verification
// gate decides whether the workspace may be finalized into an image. Stages
// run strictly in that order and a failure at any stage ends the build in
// ABORTED without running later stages. Cancelling ctx takes effect between
// stages only. The returned Result is non-nil whenever the build started,
// including when err is a [*VerificationFailure].
func Run(ctx context.Context, prov Provisioner, opts Options) (*Result, error) {
	if opts.BuildID == "" {
		opts.BuildID = uuid.NewString()
	}

	slog.Info("executing recipe",
		"recipe", opts.Recipe.Name,
		"build", opts.BuildID,
		"base", opts.Recipe.Base,
		"platform", opts.Recipe.Platform,
		"output", opts.Output,
	)

	if err := os.MkdirAll(opts.Output, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if err := clearOutput(opts.Output); err != nil {
		return nil, err
	}

	return newPipeline(prov, opts).run(ctx)
}

// Returns the container ID used for a build's workspace.
func workspaceID(name, buildID string) string {
	if len(buildID) > 8 {
		buildID = buildID[:8]
	}
	return name + "-" + buildID
}
