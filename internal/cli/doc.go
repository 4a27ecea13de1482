// Parses flags, configures logging, and runs the cruxgate commands.
//
// Global flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Add timestamps and callers to log records.
//	-d, --debug     Enable debug output.
//	-s, --socket    Unix socket path of the build daemon.
//
// Commands:
//
//	build     Run a gated build and, if verification passes, export the image.
//	run       Serve a finalized image until interrupted.
//	start     Start the build daemon.
//	stop      Ask the build daemon to shut down.
//	status    Query the build daemon.
//	version   Show version information.
//
// Flags override build-time defaults set via linker flags. After parsing, the
// global logger is reconfigured to reflect the final level and verbosity
// before the command runs. [ExitCode] maps the returned error to the process
// exit status.
package cli
