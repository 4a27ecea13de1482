package build

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"path"
	"slices"
	"sync"
	"testing"

	"github.com/cruciblehq/cruxgate/internal/recipe"
	"github.com/cruciblehq/cruxgate/internal/report"
	"github.com/cruciblehq/cruxgate/internal/runtime"
)

// In-memory workspace recording every operation the pipeline performs.
type fakeWorkspace struct {
	mu sync.Mutex

	failOn     map[string]int    // Requirement string to installer exit code.
	verifyExit int               // Exit code of the verification command.
	artifacts  map[string]string // Report directory contents; nil makes CopyFrom fail.

	calls     []string          // Operation log, in order.
	installed []string          // Requirements passed to the installer.
	staged    map[string]string // Files extracted by CopyTo, keyed by archive name.
	verifyEnv []string          // Environment of the verification command.
	exported  *runtime.ImageConfig
	stopped   bool
	destroyed bool
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{
		failOn: map[string]int{},
		staged: map[string]string{},
	}
}

func (f *fakeWorkspace) log(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeWorkspace) Exec(ctx context.Context, shell, command string, env []string, workdir string) (*runtime.ExecResult, error) {
	f.log("verify")
	f.verifyEnv = env
	return &runtime.ExecResult{ExitCode: f.verifyExit, Stdout: "collected tests\n"}, nil
}

func (f *fakeWorkspace) ExecArgs(ctx context.Context, args []string, env []string, workdir string) (*runtime.ExecResult, error) {
	req := args[len(args)-1]
	f.log("install " + req)
	f.installed = append(f.installed, req)
	if code, ok := f.failOn[req]; ok {
		return &runtime.ExecResult{
			ExitCode: code,
			Stderr:   "ERROR: Could not find a version that satisfies the requirement " + req + "\nERROR: No matching distribution found for " + req + "\n",
		}, nil
	}
	return &runtime.ExecResult{}, nil
}

func (f *fakeWorkspace) MkdirAll(ctx context.Context, path string) error {
	return nil
}

func (f *fakeWorkspace) Remove(ctx context.Context, path string) error {
	f.log("remove " + path)
	return nil
}

func (f *fakeWorkspace) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	f.log("stage")
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		f.staged[h.Name] = string(data)
	}
}

func (f *fakeWorkspace) CopyFrom(ctx context.Context, w io.Writer, p string) error {
	f.log("collect")
	if f.artifacts == nil {
		return errors.New("tar: no such file or directory")
	}

	tw := tar.NewWriter(w)
	root := path.Base(p)
	tw.WriteHeader(&tar.Header{Name: root + "/", Typeflag: tar.TypeDir, Mode: 0755})

	names := make([]string, 0, len(f.artifacts))
	for name := range f.artifacts {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		data := f.artifacts[name]
		if err := tw.WriteHeader(&tar.Header{Name: root + "/" + name, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(data))}); err != nil {
			return err
		}
		if _, err := io.WriteString(tw, data); err != nil {
			return err
		}
	}
	return tw.Close()
}

func (f *fakeWorkspace) Stop(ctx context.Context) error {
	f.log("stop")
	f.stopped = true
	return nil
}

func (f *fakeWorkspace) Export(ctx context.Context, p string, cfg runtime.ImageConfig) error {
	f.log("export")
	f.exported = &cfg
	return os.WriteFile(p, []byte("oci-archive"), 0644)
}

func (f *fakeWorkspace) Destroy(ctx context.Context) {
	f.log("destroy")
	f.destroyed = true
}

func (f *fakeWorkspace) did(op string) bool {
	return slices.Contains(f.calls, op)
}

type fakeProvisioner struct {
	ws       *fakeWorkspace
	err      error
	base     string
	id       string
	platform string
}

func (p *fakeProvisioner) Provision(ctx context.Context, base, id, platform string) (Workspace, error) {
	p.base, p.id, p.platform = base, id, platform
	if p.err != nil {
		return nil, p.err
	}
	return p.ws, nil
}

type fakePublisher struct {
	reports []*report.Report
}

func (p *fakePublisher) Publish(ctx context.Context, rep *report.Report) error {
	p.reports = append(p.reports, rep)
	return errors.New("bucket unreachable")
}

const junitPassing = `<?xml version="1.0" encoding="utf-8"?>
<testsuites><testsuite name="pytest" tests="2">
<testcase classname="tests.test_app" name="test_index"/>
<testcase classname="tests.test_app" name="test_frames"/>
</testsuite></testsuites>`

const junitFailing = `<?xml version="1.0" encoding="utf-8"?>
<testsuites><testsuite name="pytest" tests="2">
<testcase classname="tests.test_app" name="test_index"/>
<testcase classname="tests.test_app" name="test_frames"><failure message="assert 3 == 4"/></testcase>
</testsuite></testsuites>`

const coverageReport = `{"files": {"app.py": {"summary": {"covered_lines": 9, "num_statements": 10, "percent_covered": 90.0, "missing_lines": 1}}},
"totals": {"covered_lines": 9, "num_statements": 10, "percent_covered": 90.0, "missing_lines": 1}}`

// Writes a project directory containing a recipe, a manifest, and a small
// application with a test, and returns the parsed recipe.
func writeProject(t *testing.T, recipeDoc, requirements string) *recipe.Recipe {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"requirements.txt":    requirements,
		"app.py":              "from flask import Flask\napp = Flask(__name__)\n",
		"tests/test_app.py":   "def test_index():\n    assert True\n",
		".git/HEAD":           "ref: refs/heads/main\n",
		"__pycache__/app.pyc": "bytecode",
	}
	for name, data := range files {
		p := dir + "/" + name
		if err := os.MkdirAll(path.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}

	r, err := recipe.Parse([]byte(recipeDoc), dir)
	if err != nil {
		t.Fatalf("recipe.Parse: %v", err)
	}
	return r
}
