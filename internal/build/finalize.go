package build

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/renameio/v2"
	"github.com/opencontainers/go-digest"

	"github.com/cruciblehq/cruxgate/internal"
	"github.com/cruciblehq/cruxgate/internal/paths"
	"github.com/cruciblehq/cruxgate/internal/recipe"
	"github.com/cruciblehq/cruxgate/internal/report"
	"github.com/cruciblehq/cruxgate/internal/runtime"
)

// Files written to the output directory by a finalized build.
const (
	ImageFile    = "image.tar"
	MetadataFile = "image.json"
)

// A finalized, runnable image.
type Image struct {
	Path    string            `json:"path"`     // OCI archive on the host.
	Digest  digest.Digest     `json:"digest"`   // Digest of the archive file.
	Port    int               `json:"port"`     // Declared TCP port.
	Labels  map[string]string `json:"labels"`   // Labels stamped on the image config.
	Recipe  string            `json:"recipe"`   // Recipe name.
	BuildID string            `json:"build_id"` // Build that produced the image.
}

// Commits a verified workspace as an image in the output directory.
//
// A clearance is mandatory. The gate's scratch directory is removed first so
// no verification residue reaches the image.
func finalize(ctx context.Context, ws Workspace, clr *clearance, r *recipe.Recipe, buildID, output string) (*Image, error) {
	if clr == nil || clr.report == nil || !clr.report.Passed() {
		return nil, fmt.Errorf("%w: workspace has no verification clearance", ErrFinalization)
	}

	if err := ws.Remove(ctx, r.Verify.ReportDir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFinalization, err)
	}

	if err := ws.Stop(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFinalization, err)
	}

	labels := imageLabels(r, clr.report)
	archive := filepath.Join(output, ImageFile)

	err := ws.Export(ctx, archive, runtime.ImageConfig{
		Entrypoint: r.Entrypoint,
		Cmd:        r.Cmd,
		Env:        r.Environ(),
		WorkingDir: r.Workdir,
		Ports:      []int{r.Port},
		Labels:     labels,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFinalization, err)
	}

	dgst, err := fileDigest(archive)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFinalization, err)
	}

	img := &Image{
		Path:    archive,
		Digest:  dgst,
		Port:    r.Port,
		Labels:  labels,
		Recipe:  r.Name,
		BuildID: buildID,
	}

	if err := writeMetadata(filepath.Join(output, MetadataFile), img); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFinalization, err)
	}

	slog.Info("image finalized", "path", archive, "digest", dgst, "port", r.Port)
	return img, nil
}

// Labels recording the verification outcome. Only values derived from the
// inputs are used, so identical builds stamp identical labels.
func imageLabels(r *recipe.Recipe, rep *report.Report) map[string]string {
	labels := map[string]string{
		internal.Label("verification"): "passed",
		internal.Label("recipe"):       r.Name,
	}
	if rep.Coverage != nil {
		labels[internal.Label("coverage")] = strconv.FormatFloat(rep.Coverage.Percent, 'f', 2, 64)
	}
	if rep.Tests != nil {
		labels[internal.Label("tests")] = strconv.Itoa(rep.Tests.Total)
	}
	return labels
}

func fileDigest(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return digest.SHA256.FromReader(f)
}

func writeMetadata(path string, img *Image) error {
	data, err := json.MarshalIndent(img, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, append(data, '\n'), paths.DefaultFileMode)
}

// Removes artifacts a previous build left in the output directory.
func clearOutput(output string) error {
	for _, name := range []string{ImageFile, MetadataFile, report.JSONFile, report.TextFile, report.OutputFile, report.HTMLDir} {
		if err := os.RemoveAll(filepath.Join(output, name)); err != nil {
			return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
		}
	}
	return nil
}
