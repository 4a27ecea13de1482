package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cruciblehq/cruxgate/internal/recipe"
	"github.com/cruciblehq/cruxgate/internal/report"
)

// Filenames the verification tool writes into the report directory.
const (
	junitFile    = "junit.xml"
	coverageFile = "coverage.json"
)

// Environment variable naming the report directory inside the workspace.
const reportDirEnv = "CRUXGATE_REPORT_DIR"

// Proof that a workspace passed verification.
//
// Only [gate.run] creates one, and only for a PASSED report. The finalizer
// cannot be called without it.
type clearance struct {
	report *report.Report
}

// Runs the verification tool against a staged workspace and decides.
type gate struct {
	ws      Workspace
	recipe  *recipe.Recipe
	env     *execEnv
	buildID string
	output  string    // Host directory receiving the persisted report.
	summary io.Writer // Terminal summary destination; nil to skip.
	styled  bool
}

// Produces exactly one report.
//
// On PASSED it returns a clearance. On FAILED it returns a
// [*VerificationFailure] carrying the report. Other errors mean the gate
// could not run at all and no report exists.
func (g *gate) run(ctx context.Context) (*clearance, *report.Report, error) {
	dir := g.recipe.Verify.ReportDir

	if err := g.ws.Remove(ctx, dir); err != nil {
		return nil, nil, err
	}
	if err := g.ws.MkdirAll(ctx, dir); err != nil {
		return nil, nil, err
	}

	env := g.env.with(map[string]string{
		reportDirEnv:              dir,
		"COVERAGE_FILE":           path.Join(dir, ".coverage"),
		"PYTHONDONTWRITEBYTECODE": "1",
	})

	slog.Info("running verification", "command", g.recipe.Verify.Command)

	started := time.Now()
	result, err := g.ws.Exec(ctx, env.shell, g.recipe.Verify.Command, env.environ(), env.workdir)
	if err != nil {
		return nil, nil, err
	}
	elapsed := time.Since(started)

	rep := &report.Report{
		Schema:     report.Schema,
		BuildID:    g.buildID,
		Recipe:     g.recipe.Name,
		ExitCode:   result.ExitCode,
		StartedAt:  started.UTC(),
		DurationMs: elapsed.Milliseconds(),
		Output:     result.Stdout + result.Stderr,
	}

	if err := g.collect(ctx, rep); err != nil {
		return nil, nil, err
	}

	if g.summary != nil {
		if err := report.Render(g.summary, rep, g.styled); err != nil {
			slog.Warn("failed to render report", "error", err)
		}
	}

	slog.Info("verification finished", "status", rep.Status, "exit_code", rep.ExitCode, "duration", elapsed.Truncate(time.Millisecond))

	if !rep.Passed() {
		return nil, rep, &VerificationFailure{Report: rep}
	}
	return &clearance{report: rep}, rep, nil
}

// Copies the tool's artifacts out of the workspace, decides the status, and
// persists the report.
func (g *gate) collect(ctx context.Context, rep *report.Report) error {
	scratch, err := os.MkdirTemp(g.output, ".verify-")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	defer os.RemoveAll(scratch)

	artifacts := g.fetchArtifacts(ctx, scratch)

	var gaps []string

	if f, err := os.Open(filepath.Join(artifacts, junitFile)); err == nil {
		rep.Tests, err = report.ParseJUnit(f)
		f.Close()
		if err != nil {
			slog.Warn("unit report unreadable", "error", err)
			gaps = append(gaps, "unit report is unreadable")
		}
	} else {
		slog.Warn("no unit report", "path", path.Join(g.recipe.Verify.ReportDir, junitFile))
		gaps = append(gaps, "no unit report was produced")
	}

	if f, err := os.Open(filepath.Join(artifacts, coverageFile)); err == nil {
		rep.Coverage, err = report.ParseCoverage(f)
		f.Close()
		if err != nil {
			slog.Warn("coverage report unreadable", "error", err)
		}
	}

	rep.Status, rep.Reasons = report.Decide(report.Evidence{
		ExitCode:    rep.ExitCode,
		Tests:       rep.Tests,
		Coverage:    rep.Coverage,
		MinCoverage: g.recipe.Verify.MinCoverage,
	})
	if len(gaps) > 0 {
		rep.Status = report.StatusFailed
		rep.Reasons = append(rep.Reasons, gaps...)
	}

	if err := report.Write(g.output, rep); err != nil {
		return err
	}

	return g.persistHTML(artifacts)
}

// Extracts the report directory into scratch and returns the local path of
// its contents. A missing or unreadable directory yields a path with no
// artifacts in it.
func (g *gate) fetchArtifacts(ctx context.Context, scratch string) string {
	var buf bytes.Buffer
	if err := g.ws.CopyFrom(ctx, &buf, g.recipe.Verify.ReportDir); err != nil {
		slog.Warn("no verification artifacts", "error", err)
		return scratch
	}
	if err := extractTar(&buf, scratch); err != nil {
		slog.Warn("failed to extract verification artifacts", "error", err)
	}
	return filepath.Join(scratch, path.Base(g.recipe.Verify.ReportDir))
}

// Moves the coverage HTML tree, if the tool produced one, next to the report.
func (g *gate) persistHTML(artifacts string) error {
	dest := filepath.Join(g.output, report.HTMLDir)
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}

	src := filepath.Join(artifacts, report.HTMLDir)
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	return nil
}
