package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/cruciblehq/cruxgate/internal"
	"github.com/cruciblehq/cruxgate/internal/server"
)

// Represents the root command.
var RootCmd struct {
	Quiet     bool   `short:"q" env:"CRUXGATE_QUIET" help:"Suppress informational output."`
	Verbose   bool   `short:"v" env:"CRUXGATE_VERBOSE" help:"Add timestamps and callers to log output."`
	Debug     bool   `short:"d" env:"CRUXGATE_DEBUG" help:"Enable debug output."`
	Socket    string `short:"s" env:"CRUXGATE_SOCKET" help:"Override the default Unix socket path." placeholder:"PATH"`
	Address   string `name:"containerd-address" env:"CRUXGATE_CONTAINERD_ADDRESS" default:"${containerd_address}" help:"Containerd socket address." placeholder:"PATH"`
	Namespace string `name:"containerd-namespace" env:"CRUXGATE_CONTAINERD_NAMESPACE" default:"${containerd_namespace}" help:"Containerd namespace for images and containers."`

	Build   BuildCmd   `cmd:"" help:"Run a gated build."`
	Run     RunCmd     `cmd:"" help:"Serve a finalized image until interrupted."`
	Start   StartCmd   `cmd:"" help:"Start the build daemon."`
	Stop    StopCmd    `cmd:"" help:"Stop the build daemon."`
	Status  StatusCmd  `cmd:"" help:"Show build daemon status."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Gated container builds.\n\nInstalls dependencies, stages the source, and exports an image only when the test suite passes."),
		kong.UsageOnError(),
		kong.Vars{
			"version":              internal.VersionString(),
			"containerd_address":   server.DefaultContainerdAddress,
			"containerd_namespace": server.DefaultContainerdNamespace,
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Returns a logger seeded from build-time linker flags.
//
// Reconfigured after flag parsing via [Execute].
func Logger() *slog.Logger {
	return slog.New(newHandler(internal.LogLevel(), internal.IsVerbose()))
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	internal.SetDebug(RootCmd.Debug || internal.IsDebug())
	internal.SetQuiet(RootCmd.Quiet || internal.IsQuiet())
	internal.SetVerbose(RootCmd.Verbose || internal.IsVerbose())

	slog.SetDefault(slog.New(newHandler(internal.LogLevel(), internal.IsVerbose())))
}

func newHandler(level slog.Level, verbose bool) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          internal.Name,
		Level:           logLevel(level),
		ReportTimestamp: verbose,
		ReportCaller:    verbose,
	})
}

func logLevel(level slog.Level) log.Level {
	switch {
	case level <= slog.LevelDebug:
		return log.DebugLevel
	case level >= slog.LevelError:
		return log.ErrorLevel
	case level >= slog.LevelWarn:
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}
