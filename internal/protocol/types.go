package protocol

// Asks the daemon to run a gated build.
type BuildRequest struct {
	Recipe  string `json:"recipe"`            // Absolute path to the recipe file, or the project directory when there is none.
	Output  string `json:"output"`            // Absolute output directory.
	BuildID string `json:"buildId,omitempty"` // Optional build identifier.
}

// Outcome of a build that reached a decision.
type BuildResult struct {
	BuildID string `json:"buildId"`
	State   string `json:"state"`           // FINALIZED or ABORTED.
	Status  string `json:"status"`          // Verification status, empty if the gate never ran.
	Report  string `json:"report"`          // Path to report.json, empty if none was written.
	Image   string `json:"image,omitempty"` // Path to the image archive when finalized.
	Digest  string `json:"digest,omitempty"`
	Kind    string `json:"kind,omitempty"`  // Failure kind when aborted: dependency, staging, verification, finalization.
	Error   string `json:"error,omitempty"` // Failure description when aborted.
}

// Daemon status.
type StatusResult struct {
	Running bool   `json:"running"`
	Version string `json:"version"`
	Pid     int    `json:"pid"`
	Uptime  string `json:"uptime"`
	Builds  int    `json:"builds"`            // Builds processed since start.
	Current string `json:"current,omitempty"` // Build ID in progress.
	State   string `json:"state,omitempty"`   // State of the build in progress.
}

// Failure response.
type ErrorResult struct {
	Message string `json:"message"`
}
