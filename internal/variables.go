package internal

import (
	"fmt"
	"runtime"
	"strings"
)

const (

	// Program name, used for logging, paths, labels, and container naming.
	Name = "cruxgate"

	// Prefix for the labels cruxgate stamps on the images it finalizes.
	LabelPrefix = "io.cruciblehq." + Name

	// String to indicate an undefined variable.
	defaultUndefined = "(undefined)"

	// String to indicate a local (non-pipeline) build.
	defaultLocalBuild = "(local)"

	// Branch name that is omitted from version strings.
	mainBranch = "main"
)

var (
	version   = "" // Version number (e.g., "1.2.3")
	stage     = "" // Development stage or git branch (e.g., "staging", "main")
	gitCommit = "" // Git commit hash (e.g., "a1b2c3d4")

	rawQuiet   = "false" // Whether to enable quiet mode
	rawDebug   = "false" // Whether to enable debug mode
	rawVerbose = "false" // Whether to enable verbose logging
)

// Returns the current version without any "v" prefix, or "(undefined)".
func Version() string {
	v := strings.ToLower(strings.TrimSpace(version))
	if v == "" {
		return defaultUndefined
	}
	return strings.TrimPrefix(v, "v")
}

// Returns the development stage (the git branch of the pipeline build), or
// "(undefined)".
func Stage() string {
	s := strings.TrimSpace(stage)
	if s == "" {
		return defaultUndefined
	}
	return strings.ToLower(s)
}

// Returns the git commit hash, or "(undefined)".
func GitCommit() string {
	c := strings.TrimSpace(gitCommit)
	if c == "" {
		return defaultUndefined
	}
	return c
}

// Returns the build architecture.
func Arch() string {
	return runtime.GOARCH
}

// Returns true if this is a local (non-pipeline) build.
//
// Pipeline builds set version, commit, and stage via linker flags; missing
// any one of them marks the binary as local.
func IsLocal() bool {
	return strings.TrimSpace(version) == "" ||
		strings.TrimSpace(gitCommit) == "" ||
		strings.TrimSpace(stage) == ""
}

// Returns a detailed version string.
//
// Local builds report "(local)". Pipeline builds report
// "<version>[+<stage>] <git-commit> [<arch>]", omitting the stage on main.
func VersionString() string {
	if IsLocal() {
		return defaultLocalBuild
	}

	s := ""
	if st := Stage(); st != mainBranch {
		s = "+" + st
	}

	return fmt.Sprintf("%s%s %s [%s]", Version(), s, GitCommit(), Arch())
}

// Returns the fully qualified image label for key.
func Label(key string) string {
	return LabelPrefix + "." + key
}
