package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/cruciblehq/cruxgate/internal/manifest"
	"github.com/cruciblehq/cruxgate/internal/report"
)

func runBuild(t *testing.T, prov Provisioner, opts Options) (*Result, []State, error) {
	t.Helper()
	var states []State
	opts.OnTransition = func(s State) { states = append(states, s) }
	if opts.Output == "" {
		opts.Output = t.TempDir()
	}
	res, err := Run(context.Background(), prov, opts)
	return res, states, err
}

func TestRunPassing(t *testing.T) {
	r := writeProject(t, "name: gif-frames\n", "flask>=2.0\npytest\npytest-cov\n")
	ws := newFakeWorkspace()
	ws.artifacts = map[string]string{
		junitFile:            junitPassing,
		coverageFile:         coverageReport,
		"htmlcov/index.html": "<html></html>",
	}
	prov := &fakeProvisioner{ws: ws}
	output := t.TempDir()

	res, states, err := runBuild(t, prov, Options{Recipe: r, Output: output, BuildID: "0123456789abcdef"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantStates := []State{StateInit, StateDependenciesInstalled, StateSourceStaged, StateVerified, StateFinalized}
	if !slices.Equal(states, wantStates) {
		t.Fatalf("states = %v, want %v", states, wantStates)
	}
	if res.State != StateFinalized {
		t.Fatalf("State = %s, want FINALIZED", res.State)
	}

	if prov.id != "gif-frames-01234567" {
		t.Errorf("workspace id = %q", prov.id)
	}
	if prov.base != "python:3.11-slim" {
		t.Errorf("base = %q", prov.base)
	}

	if !slices.Equal(ws.installed, []string{"flask>=2.0", "pytest", "pytest-cov"}) {
		t.Errorf("installed = %v", ws.installed)
	}

	if res.Report == nil || !res.Report.Passed() {
		t.Fatalf("report = %+v, want PASSED", res.Report)
	}
	if res.Report.Tests.Total != 2 || res.Report.Coverage.Percent != 90 {
		t.Errorf("report tests = %+v, coverage = %+v", res.Report.Tests, res.Report.Coverage)
	}

	img := res.Image
	if img == nil {
		t.Fatal("Image = nil, want finalized image")
	}
	if img.Port != 5000 {
		t.Errorf("Port = %d, want 5000", img.Port)
	}
	if !strings.HasPrefix(img.Digest.String(), "sha256:") {
		t.Errorf("Digest = %q", img.Digest)
	}
	if img.Labels["io.cruciblehq.cruxgate.verification"] != "passed" {
		t.Errorf("Labels = %v", img.Labels)
	}
	if img.Labels["io.cruciblehq.cruxgate.coverage"] != "90.00" {
		t.Errorf("coverage label = %q", img.Labels["io.cruciblehq.cruxgate.coverage"])
	}

	cfg := ws.exported
	if cfg == nil {
		t.Fatal("workspace was not exported")
	}
	if !slices.Equal(cfg.Ports, []int{5000}) {
		t.Errorf("Ports = %v, want [5000]", cfg.Ports)
	}
	if !slices.Equal(cfg.Entrypoint, []string{"python", "app.py"}) || cfg.WorkingDir != "/app" {
		t.Errorf("Entrypoint = %v, WorkingDir = %q", cfg.Entrypoint, cfg.WorkingDir)
	}

	for _, name := range []string{ImageFile, MetadataFile, report.JSONFile, report.TextFile, "htmlcov/index.html"} {
		if _, err := os.Stat(filepath.Join(output, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	if !ws.stopped || !ws.destroyed {
		t.Errorf("stopped = %v, destroyed = %v", ws.stopped, ws.destroyed)
	}

	// The scratch report directory is removed before export.
	verifyIdx := slices.Index(ws.calls, "verify")
	exportIdx := slices.Index(ws.calls, "export")
	removedAfter := slices.Index(ws.calls[verifyIdx+1:], "remove /tmp/cruxgate-report")
	if removedAfter < 0 || verifyIdx+1+removedAfter > exportIdx {
		t.Errorf("calls = %v, want report dir removed between verification and export", ws.calls)
	}
}

func TestRunStagesSourceAfterInstall(t *testing.T) {
	r := writeProject(t, "ignore: [\"*.txt\"]\n", "flask\n")
	ws := newFakeWorkspace()
	ws.artifacts = map[string]string{junitFile: junitPassing}

	if _, _, err := runBuild(t, &fakeProvisioner{ws: ws}, Options{Recipe: r}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if slices.Index(ws.calls, "install flask") > slices.Index(ws.calls, "stage") {
		t.Fatalf("calls = %v, want install before stage", ws.calls)
	}
	if slices.Index(ws.calls, "stage") > slices.Index(ws.calls, "verify") {
		t.Fatalf("calls = %v, want stage before verify", ws.calls)
	}

	if _, ok := ws.staged["app.py"]; !ok {
		t.Errorf("app.py not staged: %v", keys(ws.staged))
	}
	if _, ok := ws.staged["tests/test_app.py"]; !ok {
		t.Errorf("tests/test_app.py not staged: %v", keys(ws.staged))
	}
	for name := range ws.staged {
		if strings.HasPrefix(name, ".git") || strings.HasPrefix(name, "__pycache__") || strings.HasSuffix(name, ".txt") {
			t.Errorf("ignored entry %q was staged", name)
		}
	}
}

func TestRunVerificationEnvironment(t *testing.T) {
	r := writeProject(t, "env:\n  FLASK_ENV: production\n", "flask\n")
	ws := newFakeWorkspace()
	ws.artifacts = map[string]string{junitFile: junitPassing}

	if _, _, err := runBuild(t, &fakeProvisioner{ws: ws}, Options{Recipe: r}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, want := range []string{"CRUXGATE_REPORT_DIR=/tmp/cruxgate-report", "FLASK_ENV=production", "PYTHONDONTWRITEBYTECODE=1"} {
		if !slices.Contains(ws.verifyEnv, want) {
			t.Errorf("verify env %v missing %q", ws.verifyEnv, want)
		}
	}
}

func TestRunFailingTests(t *testing.T) {
	r := writeProject(t, "", "flask>=2.0\n")
	ws := newFakeWorkspace()
	ws.verifyExit = 1
	ws.artifacts = map[string]string{junitFile: junitFailing, coverageFile: coverageReport}
	output := t.TempDir()

	// A stale image from an earlier passing build must not survive.
	if err := os.WriteFile(filepath.Join(output, ImageFile), []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	res, states, err := runBuild(t, &fakeProvisioner{ws: ws}, Options{Recipe: r, Output: output})

	var vf *VerificationFailure
	if !errors.As(err, &vf) {
		t.Fatalf("err = %v, want *VerificationFailure", err)
	}
	if !errors.Is(err, ErrVerificationFailure) {
		t.Fatalf("err = %v does not wrap ErrVerificationFailure", err)
	}
	if vf.Report.Status != report.StatusFailed {
		t.Fatalf("report status = %s", vf.Report.Status)
	}
	if !slices.Contains(vf.Report.Tests.Failing, "tests.test_app::test_frames") {
		t.Errorf("Failing = %v", vf.Report.Tests.Failing)
	}

	wantStates := []State{StateInit, StateDependenciesInstalled, StateSourceStaged, StateVerified, StateAborted}
	if !slices.Equal(states, wantStates) {
		t.Fatalf("states = %v, want %v", states, wantStates)
	}
	if res.State != StateAborted || res.Image != nil {
		t.Fatalf("State = %s, Image = %+v", res.State, res.Image)
	}

	if ws.exported != nil || ws.did("export") || ws.did("stop") {
		t.Fatalf("failed workspace reached the finalizer: %v", ws.calls)
	}
	if _, err := os.Stat(filepath.Join(output, ImageFile)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("image.tar exists after failed verification (err = %v)", err)
	}

	persisted, err := report.Read(filepath.Join(output, report.JSONFile))
	if err != nil {
		t.Fatalf("report.Read: %v", err)
	}
	if persisted.Status != report.StatusFailed {
		t.Fatalf("persisted status = %s", persisted.Status)
	}
	if !ws.destroyed {
		t.Fatal("workspace not destroyed")
	}
}

func TestRunFailingUnitWithZeroExit(t *testing.T) {
	r := writeProject(t, "", "flask\n")
	ws := newFakeWorkspace()
	ws.artifacts = map[string]string{junitFile: junitFailing}

	res, _, err := runBuild(t, &fakeProvisioner{ws: ws}, Options{Recipe: r})
	if !errors.Is(err, ErrVerificationFailure) {
		t.Fatalf("err = %v, want verification failure", err)
	}
	if res.Image != nil || ws.did("export") {
		t.Fatal("image produced despite a failing unit")
	}
}

func TestRunCoverageBelowMinimum(t *testing.T) {
	r := writeProject(t, "verify:\n  minCoverage: 95\n", "flask\n")
	ws := newFakeWorkspace()
	ws.artifacts = map[string]string{junitFile: junitPassing, coverageFile: coverageReport}

	_, _, err := runBuild(t, &fakeProvisioner{ws: ws}, Options{Recipe: r})
	var vf *VerificationFailure
	if !errors.As(err, &vf) {
		t.Fatalf("err = %v, want *VerificationFailure", err)
	}
	if len(vf.Report.Reasons) != 1 || !strings.Contains(vf.Report.Reasons[0], "below the required") {
		t.Fatalf("Reasons = %v", vf.Report.Reasons)
	}
}

func TestRunMissingArtifacts(t *testing.T) {
	r := writeProject(t, "", "flask\n")
	ws := newFakeWorkspace()
	ws.verifyExit = 2

	res, _, err := runBuild(t, &fakeProvisioner{ws: ws}, Options{Recipe: r})
	if !errors.Is(err, ErrVerificationFailure) {
		t.Fatalf("err = %v, want verification failure", err)
	}
	if res.Report == nil || res.Report.Tests != nil || res.Report.ExitCode != 2 {
		t.Fatalf("report = %+v", res.Report)
	}
}

func TestRunNoUnitReportWithZeroExit(t *testing.T) {
	tests := []struct {
		name      string
		artifacts map[string]string
	}{
		{name: "no report directory", artifacts: nil},
		{name: "coverage only", artifacts: map[string]string{coverageFile: coverageReport}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := writeProject(t, "", "flask\n")
			ws := newFakeWorkspace()
			ws.verifyExit = 0
			ws.artifacts = tt.artifacts

			res, _, err := runBuild(t, &fakeProvisioner{ws: ws}, Options{Recipe: r})
			if !errors.Is(err, ErrVerificationFailure) {
				t.Fatalf("err = %v, want verification failure", err)
			}
			if res.Image != nil {
				t.Fatal("image finalized without a unit report")
			}
			if res.State != StateAborted {
				t.Fatalf("State = %s, want ABORTED", res.State)
			}
			if res.Report.Status != report.StatusFailed || !slices.Contains(res.Report.Reasons, "no unit report was produced") {
				t.Fatalf("report = %+v", res.Report)
			}
		})
	}
}

func TestRunUnresolvableDependency(t *testing.T) {
	r := writeProject(t, "", "flask>=2.0\nnonexistent-pkg==999\npytest\n")
	ws := newFakeWorkspace()
	ws.failOn["nonexistent-pkg==999"] = 1

	res, states, err := runBuild(t, &fakeProvisioner{ws: ws}, Options{Recipe: r})

	var dre *DependencyResolutionError
	if !errors.As(err, &dre) {
		t.Fatalf("err = %v, want *DependencyResolutionError", err)
	}
	if !errors.Is(err, ErrDependencyResolution) {
		t.Fatalf("err = %v does not wrap ErrDependencyResolution", err)
	}
	if dre.Requirement.Name != "nonexistent-pkg" || dre.Requirement.Line != 2 {
		t.Fatalf("Requirement = %+v", dre.Requirement)
	}
	if !strings.Contains(err.Error(), "nonexistent-pkg==999") || !strings.Contains(err.Error(), "No matching distribution") {
		t.Fatalf("error message %q does not name the entry", err)
	}

	if !slices.Equal(ws.installed, []string{"flask>=2.0", "nonexistent-pkg==999"}) {
		t.Fatalf("installed = %v, want halt at the failing entry", ws.installed)
	}
	if ws.did("stage") || ws.did("verify") || len(ws.staged) != 0 {
		t.Fatalf("pipeline continued past dependency failure: %v", ws.calls)
	}
	if !slices.Equal(states, []State{StateInit, StateAborted}) {
		t.Fatalf("states = %v", states)
	}
	if res.Report != nil || res.Image != nil {
		t.Fatalf("result = %+v, want no report and no image", res)
	}
}

func TestRunProvisionFailure(t *testing.T) {
	r := writeProject(t, "", "flask\n")
	boom := errors.New("containerd unavailable")

	res, _, err := runBuild(t, &fakeProvisioner{err: boom}, Options{Recipe: r})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if res.State != StateAborted {
		t.Fatalf("State = %s, want ABORTED", res.State)
	}
}

func TestRunInvalidManifest(t *testing.T) {
	r := writeProject(t, "", "-r other.txt\n")
	prov := &fakeProvisioner{ws: newFakeWorkspace()}

	res, _, err := runBuild(t, prov, Options{Recipe: r})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if prov.id != "" {
		t.Fatal("workspace provisioned for an invalid manifest")
	}
	if res.State != StateAborted {
		t.Fatalf("State = %s, want ABORTED", res.State)
	}
}

func TestRunCancelledBetweenStages(t *testing.T) {
	r := writeProject(t, "", "flask\n")
	ws := newFakeWorkspace()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, &fakeProvisioner{ws: ws}, Options{Recipe: r, Output: t.TempDir()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !ws.did("install flask") {
		t.Fatal("started stage was interrupted")
	}
	if ws.did("stage") {
		t.Fatal("stage started after cancellation")
	}
	if res.State != StateAborted {
		t.Fatalf("State = %s, want ABORTED", res.State)
	}
}

func TestRunPublishesReport(t *testing.T) {
	for _, exit := range []int{0, 1} {
		r := writeProject(t, "", "flask\n")
		ws := newFakeWorkspace()
		ws.verifyExit = exit
		ws.artifacts = map[string]string{junitFile: junitPassing}
		pub := &fakePublisher{}

		res, _, _ := runBuild(t, &fakeProvisioner{ws: ws}, Options{Recipe: r, Publisher: pub})

		if len(pub.reports) != 1 || pub.reports[0] != res.Report {
			t.Fatalf("exit %d: published %d reports", exit, len(pub.reports))
		}
		// A failed upload does not change the outcome.
		if exit == 0 && res.State != StateFinalized {
			t.Fatalf("State = %s after publish failure", res.State)
		}
	}
}

func TestFinalizeRequiresClearance(t *testing.T) {
	r := writeProject(t, "", "flask\n")
	ws := newFakeWorkspace()

	failed := &clearance{report: &report.Report{Status: report.StatusFailed}}
	for _, clr := range []*clearance{nil, {}, failed} {
		_, err := finalize(context.Background(), ws, clr, r, "id", t.TempDir())
		if !errors.Is(err, ErrFinalization) {
			t.Fatalf("err = %v, want ErrFinalization", err)
		}
	}
	if len(ws.calls) != 0 {
		t.Fatalf("finalizer touched the workspace without clearance: %v", ws.calls)
	}
}

func TestImageLabelsDeterministic(t *testing.T) {
	r := writeProject(t, "name: svc\n", "flask\n")
	rep := &report.Report{
		Status:   report.StatusPassed,
		BuildID:  "a",
		Tests:    &report.Tests{Total: 4, Passed: 4},
		Coverage: &report.Coverage{Percent: 87.5},
	}
	other := *rep
	other.BuildID = "b"

	a, b := imageLabels(r, rep), imageLabels(r, &other)
	if len(a) != len(b) {
		t.Fatalf("labels differ: %v vs %v", a, b)
	}
	for k, v := range a {
		if b[k] != v {
			t.Fatalf("label %s differs: %q vs %q", k, v, b[k])
		}
	}
	if a["io.cruciblehq.cruxgate.coverage"] != "87.50" || a["io.cruciblehq.cruxgate.tests"] != "4" {
		t.Fatalf("labels = %v", a)
	}
}

func TestWorkspaceID(t *testing.T) {
	if got := workspaceID("app", "0123456789"); got != "app-01234567" {
		t.Fatalf("workspaceID = %q", got)
	}
	if got := workspaceID("app", "abc"); got != "app-abc" {
		t.Fatalf("workspaceID = %q", got)
	}
}

func TestDependencyResolutionErrorMessage(t *testing.T) {
	r := writeProject(t, "", "nonexistent-pkg==999\n")
	ws := newFakeWorkspace()
	ws.failOn["nonexistent-pkg==999"] = 1

	_, _, err := runBuild(t, &fakeProvisioner{ws: ws}, Options{Recipe: r})
	want := "dependency resolution failed: nonexistent-pkg==999 (line 1, exit code 1): ERROR: No matching distribution found for nonexistent-pkg==999"
	if err == nil || err.Error() != want {
		t.Fatalf("err = %v\nwant %s", err, want)
	}
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&DependencyResolutionError{}, "dependency"},
		{fmt.Errorf("load: %w", manifest.ErrInvalidManifest), "dependency"},
		{fmt.Errorf("%w: tar", ErrStaging), "staging"},
		{&VerificationFailure{Report: &report.Report{}}, "verification"},
		{fmt.Errorf("%w: export", ErrFinalization), "finalization"},
		{errors.New("containerd unreachable"), ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := FailureKind(tt.err); got != tt.want {
			t.Errorf("FailureKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
