package build

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, data := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func archive(t *testing.T, root string, ignore []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := writeTree(&buf, root, ignore); err != nil {
		t.Fatalf("writeTree: %v", err)
	}
	return buf.Bytes()
}

func entries(t *testing.T, data []byte) []*tar.Header {
	t.Helper()
	var headers []*tar.Header
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return headers
		}
		if err != nil {
			t.Fatalf("tar: %v", err)
		}
		headers = append(headers, h)
	}
}

func TestWriteTreeDeterministic(t *testing.T) {
	files := map[string]string{
		"app.py":            "print('hi')\n",
		"gif_parser.py":     "def frames(): pass\n",
		"tests/test_app.py": "def test(): pass\n",
	}

	a, b := t.TempDir(), t.TempDir()
	writeFiles(t, a, files)
	writeFiles(t, b, files)

	// Different timestamps on otherwise identical trees.
	old := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := os.Chtimes(filepath.Join(b, "app.py"), old, old); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(archive(t, a, nil), archive(t, b, nil)) {
		t.Fatal("identical sources produced different archives")
	}
}

func TestWriteTreeOrderAndMetadata(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"z.py":         "z",
		"a.py":         "a",
		"pkg/mod.py":   "m",
		"pkg/__init__": "",
	})
	if err := os.Chmod(filepath.Join(root, "z.py"), 0700); err != nil {
		t.Fatal(err)
	}

	headers := entries(t, archive(t, root, nil))

	var names []string
	for _, h := range headers {
		names = append(names, h.Name)
		if !h.ModTime.Equal(time.Unix(0, 0)) {
			t.Errorf("%s: ModTime = %v, want epoch", h.Name, h.ModTime)
		}
		if h.Uid != 0 || h.Gid != 0 || h.Uname != "" || h.Gname != "" {
			t.Errorf("%s: ownership not normalized: %d/%d %q/%q", h.Name, h.Uid, h.Gid, h.Uname, h.Gname)
		}
	}

	want := []string{"a.py", "pkg/", "pkg/__init__", "pkg/mod.py", "z.py"}
	if !slices.Equal(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}

	for _, h := range headers {
		switch h.Name {
		case "z.py", "pkg/":
			if h.Mode != 0755 {
				t.Errorf("%s: Mode = %o, want 755", h.Name, h.Mode)
			}
		case "a.py":
			if h.Mode != 0644 {
				t.Errorf("%s: Mode = %o, want 644", h.Name, h.Mode)
			}
		}
	}
}

func TestWriteTreeIgnore(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"app.py":                 "",
		"README.md":              "",
		"docs/guide.md":          "",
		".git/HEAD":              "",
		"pkg/__pycache__/m.pyc":  "",
		"pkg/m.py":               "",
		"build/out/artifact.bin": "",
	})

	headers := entries(t, archive(t, root, []string{"*.md", "docs", "build/out"}))

	var names []string
	for _, h := range headers {
		names = append(names, h.Name)
	}
	want := []string{"app.py", "build/", "pkg/", "pkg/m.py"}
	if !slices.Equal(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
}

func TestIgnored(t *testing.T) {
	tests := []struct {
		rel      string
		patterns []string
		want     bool
	}{
		{rel: "app.py", want: false},
		{rel: ".git", want: true},
		{rel: "pkg/__pycache__", want: true},
		{rel: "notes.md", patterns: []string{"*.md"}, want: true},
		{rel: "docs/notes.md", patterns: []string{"*.md"}, want: true},
		{rel: "docs/notes.md", patterns: []string{"docs/*.md"}, want: true},
		{rel: "src/docs", patterns: []string{"docs"}, want: true},
		{rel: "app.py", patterns: []string{"[", "*.md"}, want: false},
	}

	for _, tt := range tests {
		if got := ignored(tt.rel, tt.patterns); got != tt.want {
			t.Errorf("ignored(%q, %v) = %v, want %v", tt.rel, tt.patterns, got, tt.want)
		}
	}
}

func TestStageRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "app.py")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	ws := newFakeWorkspace()
	_, err := stage(t.Context(), ws, file, "/app", nil)
	if !errors.Is(err, ErrStaging) {
		t.Fatalf("err = %v, want ErrStaging", err)
	}
	if ws.did("stage") {
		t.Fatal("workspace written for an invalid source")
	}
}

func TestStageMissingSource(t *testing.T) {
	_, err := stage(t.Context(), newFakeWorkspace(), filepath.Join(t.TempDir(), "missing"), "/app", nil)
	if !errors.Is(err, ErrStaging) {
		t.Fatalf("err = %v, want ErrStaging", err)
	}
}

func TestSafeJoin(t *testing.T) {
	dest := "/tmp/out"
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "report/junit.xml", want: "/tmp/out/report/junit.xml"},
		{name: "./report/", want: "/tmp/out/report"},
		{name: "../escape", wantErr: true},
		{name: "report/../../escape", wantErr: true},
		{name: "..", wantErr: true},
	}

	for _, tt := range tests {
		got, err := safeJoin(dest, tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("safeJoin(%q) = %q, want error", tt.name, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("safeJoin(%q) = %q, %v; want %q", tt.name, got, err, tt.want)
		}
	}
}

func TestExtractTar(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	add := func(h *tar.Header, data string) {
		h.Size = int64(len(data))
		if err := tw.WriteHeader(h); err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(tw, data); err != nil {
			t.Fatal(err)
		}
	}
	add(&tar.Header{Name: "r/", Typeflag: tar.TypeDir, Mode: 0755}, "")
	add(&tar.Header{Name: "r/junit.xml", Typeflag: tar.TypeReg, Mode: 0644}, "<testsuites/>")
	add(&tar.Header{Name: "r/htmlcov/index.html", Typeflag: tar.TypeReg, Mode: 0644}, "html")
	add(&tar.Header{Name: "r/link", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd"}, "")
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := extractTar(&buf, dest); err != nil {
		t.Fatalf("extractTar: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "r", "junit.xml"))
	if err != nil || string(data) != "<testsuites/>" {
		t.Fatalf("junit.xml = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(dest, "r", "htmlcov", "index.html")); err != nil {
		t.Fatalf("nested file missing: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(dest, "r", "link")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("symlink extracted (err = %v)", err)
	}
}

func TestExtractTarRejectsEscape(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	tw.WriteHeader(&tar.Header{Name: "../evil", Typeflag: tar.TypeReg, Mode: 0644})
	tw.Close()

	if err := extractTar(&buf, t.TempDir()); err == nil {
		t.Fatal("expected error for escaping entry")
	}
}
