package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// A service process started from a finalized image.
//
// Unlike a build [Container], the process is the image's own entrypoint
// rather than a placeholder, and its output is streamed to the caller.
type Process struct {
	ctr  containerd.Container
	task containerd.Task
	done chan struct{}

	mu   sync.Mutex
	code int
	err  error
}

// Starts the image's configured process in a new container.
//
// The container shares the host network namespace so the declared port is
// reachable on the host. Any stale container with the same ID is removed
// first. The exit status is collected on a context detached from ctx, so
// cancelling ctx does not stop the process; use [Process.Signal].
func (rt *Runtime) Launch(ctx context.Context, tag, id string, stdout, stderr io.Writer) (*Process, error) {
	platform := defaultPlatform()
	c := &Container{client: rt.client, id: id, platform: platform}
	c.remove(ctx)

	image, err := rt.resolveImage(ctx, tag, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	ctr, err := rt.client.NewContainer(ctx, id,
		containerd.WithImage(image),
		containerd.WithSnapshotter(snapshotter),
		containerd.WithNewSnapshot(id, image),
		containerd.WithRuntime(ociRuntime, nil),
		containerd.WithNewSpec(
			oci.WithDefaultSpecForPlatform(platform),
			oci.WithImageConfig(image),
			oci.WithHostNamespace(specs.NetworkNamespace),
			oci.WithHostResolvconf,
			oci.WithHostHostsFile,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.NewTask(ctx, cio.NewCreator(cio.WithStreams(nil, stdout, stderr)))
	if err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	statusC, err := task.Wait(context.WithoutCancel(ctx))
	if err != nil {
		task.Delete(ctx)
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	p := &Process{ctr: ctr, task: task, done: make(chan struct{})}

	go func() {
		status := <-statusC
		code, _, err := status.Result()
		p.mu.Lock()
		p.code, p.err = int(code), err
		p.mu.Unlock()
		close(p.done)
	}()

	slog.Debug("process started", "id", id, "image", tag, "pid", task.Pid())
	return p, nil
}

// Returns a channel closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Returns the exit code. Only meaningful after [Process.Done] is closed.
func (p *Process) ExitCode() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, p.err
}

// Delivers a signal to the process.
func (p *Process) Signal(ctx context.Context, sig syscall.Signal) error {
	if err := p.task.Kill(ctx, sig); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return nil
}

// Removes the task and the container along with its snapshot.
//
// A still-running process is killed.
func (p *Process) Delete(ctx context.Context) error {
	if _, err := p.task.Delete(ctx, containerd.WithProcessKill); err != nil {
		slog.Warn("failed to delete task", "id", p.ctr.ID(), "error", err)
	}
	if err := p.ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return nil
}
