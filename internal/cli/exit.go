package cli

import (
	"errors"

	"github.com/cruciblehq/cruxgate/internal/build"
)

// Process exit statuses.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitDependency   = 2
	ExitStaging      = 3
	ExitVerification = 4
	ExitFinalization = 5
)

// Maps an error returned by [Execute] to the process exit status.
//
// Build failures exit with the code of their stage, whether the build ran
// locally or in the daemon. Everything else, including configuration and
// runtime connectivity problems, exits with [ExitFailure].
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	kind := build.FailureKind(err)

	var remote *remoteBuildError
	if errors.As(err, &remote) {
		kind = remote.kind
	}

	switch kind {
	case "dependency":
		return ExitDependency
	case "staging":
		return ExitStaging
	case "verification":
		return ExitVerification
	case "finalization":
		return ExitFinalization
	default:
		return ExitFailure
	}
}
