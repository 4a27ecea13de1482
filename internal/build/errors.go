package build

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cruciblehq/cruxgate/internal/manifest"
	"github.com/cruciblehq/cruxgate/internal/report"
)

var (
	ErrBuild                = errors.New("build failed")
	ErrFileSystemOperation  = errors.New("file system operation failed")
	ErrDependencyResolution = errors.New("dependency resolution failed")
	ErrStaging              = errors.New("staging failed")
	ErrVerificationFailure  = errors.New("verification failed")
	ErrFinalization         = errors.New("finalization failed")
	ErrIllegalTransition    = errors.New("illegal state transition")
)

// Returned when the installer rejects a manifest entry.
//
// Carries the offending requirement so the caller can name it.
type DependencyResolutionError struct {
	Requirement manifest.Requirement // Entry that could not be installed.
	ExitCode    int                  // Installer exit code.
	Stderr      string               // Installer diagnostics.
}

func (e *DependencyResolutionError) Error() string {
	msg := fmt.Sprintf("%s: %s (line %d, exit code %d)", ErrDependencyResolution, e.Requirement, e.Requirement.Line, e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *DependencyResolutionError) Unwrap() error {
	return ErrDependencyResolution
}

// Returned when the verification gate reports FAILED.
type VerificationFailure struct {
	Report *report.Report // The FAILED report; never nil.
}

func (e *VerificationFailure) Error() string {
	if len(e.Report.Reasons) == 0 {
		return ErrVerificationFailure.Error()
	}
	return fmt.Sprintf("%s: %s", ErrVerificationFailure, strings.Join(e.Report.Reasons, "; "))
}

func (e *VerificationFailure) Unwrap() error {
	return ErrVerificationFailure
}

// Names the stage an error belongs to: "dependency", "staging",
// "verification", or "finalization". Anything else is "".
//
// An invalid manifest counts as a dependency failure.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrDependencyResolution), errors.Is(err, manifest.ErrInvalidManifest):
		return "dependency"
	case errors.Is(err, ErrStaging):
		return "staging"
	case errors.Is(err, ErrVerificationFailure):
		return "verification"
	case errors.Is(err, ErrFinalization):
		return "finalization"
	default:
		return ""
	}
}

// Returns the last non-blank line of s.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
