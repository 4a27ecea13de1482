package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/cruciblehq/cruxgate/internal/manifest"
)

// Installs every manifest entry into the workspace.
//
// Entries are installed in manifest order with one installer invocation
// each, the requirement passed as a single argument so it is never subject
// to shell interpretation. The first entry the installer rejects stops the
// installation with a [DependencyResolutionError]. Nothing is retried.
func install(ctx context.Context, ws Workspace, m *manifest.Manifest, installer []string, env *execEnv, progress io.Writer) error {
	bar := newProgressBar(progress, m.Len(), "installing dependencies")
	defer bar.Finish()

	for _, req := range m.Requirements {
		args := append(slices.Clone(installer), req.String())

		if progress == nil {
			slog.Info("installing dependency", "requirement", req.String())
		} else {
			bar.Describe(req.String())
		}

		result, err := ws.ExecArgs(ctx, args, env.environ(), "")
		if err != nil {
			return fmt.Errorf("installing %s: %w", req, err)
		}
		if result.ExitCode != 0 {
			return &DependencyResolutionError{
				Requirement: req,
				ExitCode:    result.ExitCode,
				Stderr:      result.Stderr,
			}
		}

		slog.Debug("dependency installed", "requirement", req.String())
		bar.Add(1)
	}

	return nil
}

// Returns a progress bar drawing to w, or a silent one when w is nil.
func newProgressBar(w io.Writer, n int, description string) *progressbar.ProgressBar {
	if w == nil {
		return progressbar.DefaultSilent(int64(n), description)
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(65*time.Millisecond),
	)
}
