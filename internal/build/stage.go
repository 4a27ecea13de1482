package build

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"
)

// Directories never staged: VCS metadata and interpreter caches.
var alwaysIgnored = []string{".git", "__pycache__"}

// Copies the source tree into the workspace workdir.
//
// The tree is streamed as a tar archive whose entries appear in lexical
// order with normalized metadata, so identical sources always produce
// identical archives. Entries matching an ignore pattern are skipped.
// Returns the number of entries staged.
func stage(ctx context.Context, ws Workspace, src, workdir string, ignore []string) (int, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStaging, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%w: source %s is not a directory", ErrStaging, src)
	}

	if err := ws.MkdirAll(ctx, workdir); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStaging, err)
	}

	slog.Debug("staging source", "src", src, "dest", workdir)

	pr, pw := io.Pipe()

	type written struct {
		n   int
		err error
	}
	done := make(chan written, 1)
	go func() {
		n, err := writeTree(pw, src, ignore)
		pw.CloseWithError(err)
		done <- written{n, err}
	}()

	copyErr := ws.CopyTo(ctx, pr, workdir)
	pr.Close()
	w := <-done

	if copyErr != nil {
		return 0, fmt.Errorf("%w: %w", ErrStaging, copyErr)
	}
	if w.err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStaging, w.err)
	}

	return w.n, nil
}

// Writes the tree rooted at root to w as a tar archive, returning the number
// of entries written. Entry names are relative to root.
func writeTree(w io.Writer, root string, ignore []string) (int, error) {
	tw := tar.NewWriter(w)
	n := 0

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if ignored(rel, ignore) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		n++
		return writeTarEntry(tw, p, rel, d)
	})
	if err != nil {
		return n, err
	}

	return n, tw.Close()
}

// Writes a single file, directory, or symlink entry to a tar writer.
//
// Timestamps, ownership, and permission bits beyond the executable flag are
// normalized.
func writeTarEntry(tw *tar.Writer, hostPath, archivePath string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	link := ""
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(hostPath); err != nil {
			return err
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	normalizeHeader(header, info.Mode())
	header.Name = archivePath
	if info.IsDir() {
		header.Name += "/"
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if info.Mode().IsRegular() {
		f, err := os.Open(hostPath)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	}

	return nil
}

// Strips host-specific metadata from a header.
func normalizeHeader(h *tar.Header, mode fs.FileMode) {
	h.ModTime = time.Unix(0, 0)
	h.AccessTime = time.Time{}
	h.ChangeTime = time.Time{}
	h.Uid, h.Gid = 0, 0
	h.Uname, h.Gname = "", ""

	switch {
	case mode&fs.ModeSymlink != 0:
		h.Mode = 0777
	case mode.IsDir(), mode&0111 != 0:
		h.Mode = 0755
	default:
		h.Mode = 0644
	}
}

// Whether a slash-separated relative path is excluded from staging.
//
// A pattern matches the full relative path or any single path element.
// Malformed patterns never match.
func ignored(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, name := range alwaysIgnored {
		if base == name {
			return true
		}
	}
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
