package launch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cruciblehq/cruxgate/internal"
	"github.com/cruciblehq/cruxgate/internal/build"
)

const (
	DefaultReadyTimeout = 30 * time.Second
	DefaultGracePeriod  = 10 * time.Second

	probeInterval = 200 * time.Millisecond
	probeTimeout  = 500 * time.Millisecond
	killWait      = 5 * time.Second
)

// Controls a launch.
type Options struct {
	Image        string            // Path to the OCI archive.
	Port         int               // Port to probe. Zero uses the port the image declares.
	ReadyTimeout time.Duration     // How long to wait for the port to accept connections.
	GracePeriod  time.Duration     // Time between SIGTERM and SIGKILL.
	KeepImage    bool              // Leave the imported image in containerd after exit.
	Stdout       io.Writer         // Process standard output.
	Stderr       io.Writer         // Process standard error.
	OnTransition func(build.State) // Called with RUNNING once the port accepts connections.
}

// Serves an image until ctx is cancelled.
//
// Returns nil after a requested shutdown. A process that exits on its own,
// or never accepts connections on its port, is an error wrapping
// [ErrLaunch].
func Run(ctx context.Context, rt Runtime, opts Options) error {
	opts = withDefaults(opts)
	cleanupCtx := context.WithoutCancel(ctx)

	tag, err := archiveTag(opts.Image)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	if err := rt.ImportImage(ctx, opts.Image, tag); err != nil {
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	if !opts.KeepImage {
		defer func() {
			if err := rt.DestroyImage(cleanupCtx, tag); err != nil {
				slog.Warn("failed to remove image", "tag", tag, "error", err)
			}
		}()
	}

	cfg, err := rt.ImageConfig(ctx, tag)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	if cfg.Labels[internal.Label("verification")] != "passed" {
		return fmt.Errorf("%w: %w: %s", ErrLaunch, ErrNotGated, opts.Image)
	}

	port := opts.Port
	if port == 0 {
		if port, err = declaredPort(cfg); err != nil {
			return fmt.Errorf("%w: %w", ErrLaunch, err)
		}
	}

	id := containerID(cfg)
	proc, err := rt.Launch(ctx, tag, id, opts.Stdout, opts.Stderr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	defer func() {
		if err := proc.Delete(cleanupCtx); err != nil {
			slog.Warn("failed to remove container", "id", id, "error", err)
		}
	}()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	slog.Info("waiting for process", "id", id, "addr", addr)

	if err := waitReady(ctx, addr, opts.ReadyTimeout, proc); err != nil {
		terminate(cleanupCtx, proc, opts.GracePeriod)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	slog.Info("process ready", "state", build.StateRunning, "addr", addr)
	if opts.OnTransition != nil {
		opts.OnTransition(build.StateRunning)
	}

	select {
	case <-proc.Done():
		return fmt.Errorf("%w: %w", ErrLaunch, exitError(proc))
	case <-ctx.Done():
		slog.Info("terminating process", "id", id)
		terminate(cleanupCtx, proc, opts.GracePeriod)
		return nil
	}
}

func withDefaults(opts Options) Options {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return opts
}

// Polls addr until it accepts a TCP connection.
func waitReady(ctx context.Context, addr string, timeout time.Duration, proc Process) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	dialer := net.Dialer{Timeout: probeTimeout}

	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-proc.Done():
			return exitError(proc)
		case <-deadline.C:
			return fmt.Errorf("%w on %s after %s", ErrNotReady, addr, timeout)
		case <-ticker.C:
		}
	}
}

// Stops the process: SIGTERM, then SIGKILL once the grace period elapses.
func terminate(ctx context.Context, proc Process, grace time.Duration) {
	select {
	case <-proc.Done():
		return
	default:
	}

	if err := proc.Signal(ctx, syscall.SIGTERM); err != nil {
		slog.Warn("failed to signal process", "signal", "SIGTERM", "error", err)
	}

	select {
	case <-proc.Done():
		return
	case <-time.After(grace):
	}

	slog.Warn("process ignored SIGTERM, killing", "grace", grace)
	if err := proc.Signal(ctx, syscall.SIGKILL); err != nil {
		slog.Warn("failed to signal process", "signal", "SIGKILL", "error", err)
	}

	select {
	case <-proc.Done():
	case <-time.After(killWait):
		slog.Warn("process did not exit after SIGKILL")
	}
}

func exitError(proc Process) error {
	code, err := proc.ExitCode()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExitedEarly, err)
	}
	return fmt.Errorf("%w with code %d", ErrExitedEarly, code)
}

// Returns the single TCP port an image declares. When several are declared
// the lowest is used.
func declaredPort(cfg ocispec.ImageConfig) (int, error) {
	var ports []int
	for key := range cfg.ExposedPorts {
		num, proto, _ := strings.Cut(key, "/")
		if proto != "" && proto != "tcp" {
			continue
		}
		if p, err := strconv.Atoi(num); err == nil && p > 0 && p <= 65535 {
			ports = append(ports, p)
		}
	}
	if len(ports) == 0 {
		return 0, ErrNoPort
	}
	slices.Sort(ports)
	if len(ports) > 1 {
		slog.Warn("image declares several ports, using the lowest", "ports", ports)
	}
	return ports[0], nil
}

// Derives a containerd tag from the archive content.
func archiveTag(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	d, err := digest.SHA256.FromReader(f)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/run:%s", internal.Name, d.Encoded()[:12]), nil
}

// Returns a fresh container ID named after the recipe that built the image.
func containerID(cfg ocispec.ImageConfig) string {
	name := cfg.Labels[internal.Label("recipe")]
	if name == "" {
		name = "app"
	}
	return fmt.Sprintf("%s-run-%s", name, uuid.NewString()[:8])
}
