package report

import (
	"fmt"
	"time"
)

// Schema identifier written into every persisted report.
const Schema = "cruxgate.verification_report.v1"

// Outcome of a verification run.
type Status string

const (
	StatusPassed Status = "PASSED"
	StatusFailed Status = "FAILED"
)

// Result of one verification run against a staged workspace.
type Report struct {
	Schema     string    `json:"schema"`
	BuildID    string    `json:"build_id"`
	Recipe     string    `json:"recipe"`
	Status     Status    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	Reasons    []string  `json:"reasons,omitempty"`
	Tests      *Tests    `json:"tests,omitempty"`
	Coverage   *Coverage `json:"coverage,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Output     string    `json:"-"` // Terminal output of the verification tool.
}

// Counts of executed test units.
type Tests struct {
	Total   int      `json:"total"`
	Passed  int      `json:"passed"`
	Failed  int      `json:"failed"`
	Errors  int      `json:"errors"`
	Skipped int      `json:"skipped"`
	Failing []string `json:"failing,omitempty"`
}

// Coverage summary across the staged source.
type Coverage struct {
	Percent    float64 `json:"percent"`
	Statements int     `json:"statements"`
	Covered    int     `json:"covered"`
	Missing    int     `json:"missing"`
	Units      []Unit  `json:"units,omitempty"`
}

// Coverage of a single source file.
type Unit struct {
	Path       string  `json:"path"`
	Statements int     `json:"statements"`
	Missing    int     `json:"missing"`
	Percent    float64 `json:"percent"`
}

// Returns true if the report status is PASSED.
func (r *Report) Passed() bool {
	return r.Status == StatusPassed
}

// Inputs to the pass/fail decision.
type Evidence struct {
	ExitCode    int       // Exit code of the verification command.
	Tests       *Tests    // Parsed unit results, nil when the tool produced none.
	Coverage    *Coverage // Parsed coverage, nil when the tool produced none.
	MinCoverage float64   // Required aggregate coverage; 0 disables the check.
}

// Applies the verification rule.
//
// The run fails when the command exits non-zero, when any unit failed or
// errored, or when a coverage minimum is configured and not met. A single
// failing unit fails the whole run. Coverage never turns a failing run into
// a passing one. The returned reasons are empty exactly when the status is
// PASSED.
func Decide(ev Evidence) (Status, []string) {
	var reasons []string

	if ev.ExitCode != 0 {
		reasons = append(reasons, fmt.Sprintf("verification command exited with code %d", ev.ExitCode))
	}

	if ev.Tests != nil {
		if bad := ev.Tests.Failed + ev.Tests.Errors; bad > 0 {
			reasons = append(reasons, fmt.Sprintf("%d of %d units failed", bad, ev.Tests.Total))
		}
	}

	if ev.MinCoverage > 0 {
		switch {
		case ev.Coverage == nil:
			reasons = append(reasons, fmt.Sprintf("coverage of %.1f%% required but no coverage report was produced", ev.MinCoverage))
		case ev.Coverage.Percent < ev.MinCoverage:
			reasons = append(reasons, fmt.Sprintf("coverage %.1f%% is below the required %.1f%%", ev.Coverage.Percent, ev.MinCoverage))
		}
	}

	if len(reasons) > 0 {
		return StatusFailed, reasons
	}
	return StatusPassed, nil
}
