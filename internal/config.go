package internal

import (
	"log/slog"
	"strconv"
	"sync/atomic"
)

var (
	quietMode   atomic.Bool // Suppress informational output.
	debugMode   atomic.Bool // Emit debug records.
	verboseMode atomic.Bool // Include timestamps and callers in log records.
)

// Seeds the output modes from linker flags.
//
// The rawQuiet, rawDebug, and rawVerbose variables are set via ldflags in
// pipeline builds. Unparseable values leave the mode disabled.
func init() {
	if v, err := strconv.ParseBool(rawQuiet); err == nil {
		quietMode.Store(v)
	}
	if v, err := strconv.ParseBool(rawDebug); err == nil {
		debugMode.Store(v)
	}
	if v, err := strconv.ParseBool(rawVerbose); err == nil {
		verboseMode.Store(v)
	}
}

// Enables or disables quiet mode.
func SetQuiet(enabled bool) {
	quietMode.Store(enabled)
}

// Returns true if quiet mode is enabled.
func IsQuiet() bool {
	return quietMode.Load()
}

// Enables or disables debug mode.
func SetDebug(enabled bool) {
	debugMode.Store(enabled)
}

// Returns true if debug mode is enabled.
func IsDebug() bool {
	return debugMode.Load()
}

// Enables or disables verbose logging.
func SetVerbose(enabled bool) {
	verboseMode.Store(enabled)
}

// Returns true if verbose logging is enabled.
func IsVerbose() bool {
	return verboseMode.Load()
}

// Returns the log level implied by the current modes.
//
// Debug wins over quiet when both are set.
func LogLevel() slog.Level {
	switch {
	case IsDebug():
		return slog.LevelDebug
	case IsQuiet():
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
