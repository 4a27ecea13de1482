package runtime

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// Filesystem operations inside a running container, expressed as commands
// the base image is expected to provide (mkdir, rm, tar).

// Creates a directory inside the container, including parents.
func (c *Container) MkdirAll(ctx context.Context, dir string) error {
	return c.run(ctx, "mkdir "+dir, nil, nil, "mkdir", "-p", dir)
}

// Removes a file or directory tree inside the container.
//
// Removing a path that does not exist is not an error.
func (c *Container) Remove(ctx context.Context, p string) error {
	return c.run(ctx, "remove "+p, nil, nil, "rm", "-rf", p)
}

// Unpacks the tar stream r into destDir inside the container.
//
// Entry metadata (modes, owners, mtimes) is kept as written in the stream.
func (c *Container) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	return c.run(ctx, "unpack into "+destDir, r, nil, "tar", "-x", "-f", "-", "-C", destDir)
}

// Streams p out of the container as a tar archive whose single top-level
// entry is the base name of p.
func (c *Container) CopyFrom(ctx context.Context, w io.Writer, p string) error {
	return c.run(ctx, "archive "+p, nil, w, "tar", "-c", "-f", "-", "--numeric-owner", "-C", path.Dir(p), path.Base(p))
}

// Runs a helper command with the container's default environment and
// workdir. A non-zero exit is an error naming op and the last line the
// command wrote to stderr.
func (c *Container) run(ctx context.Context, op string, stdin io.Reader, stdout io.Writer, args ...string) error {
	code, stderr, err := c.execCommand(ctx, stdin, stdout, nil, "", args...)
	if err != nil {
		return err
	}
	if code == 0 {
		return nil
	}

	detail := fmt.Sprintf("%s: exit code %d", op, code)
	if tail := lastLine(stderr); tail != "" {
		detail += ": " + tail
	}
	return fmt.Errorf("%w: %s", ErrRuntime, detail)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
